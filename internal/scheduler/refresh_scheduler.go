package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// Sweeper runs one full batch refresh.
type Sweeper interface {
	RefreshAll(ctx context.Context, trigger string) (domain.SweepReport, error)
}

// RefreshScheduler fires a sweep shortly after start, then on every interval
// and on manual triggers. A trigger arriving while a sweep runs is dropped.
type RefreshScheduler struct {
	sweeper       Sweeper
	logger        logger.Logger
	interval      time.Duration
	startupDelay  time.Duration
	manualTrigger <-chan struct{}
	stopCh        chan struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewRefreshScheduler(
	sweeper Sweeper,
	log logger.Logger,
	interval time.Duration,
	startupDelay time.Duration,
	manualTrigger <-chan struct{},
) *RefreshScheduler {
	return &RefreshScheduler{
		sweeper:       sweeper,
		logger:        log,
		interval:      interval,
		startupDelay:  startupDelay,
		manualTrigger: manualTrigger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the scheduling loop and returns immediately.
func (rs *RefreshScheduler) Start(ctx context.Context) error {
	if rs.interval <= 0 {
		return fmt.Errorf("refresh interval must be > 0, got %v", rs.interval)
	}

	startup := time.NewTimer(rs.startupDelay)
	ticker := time.NewTicker(rs.interval)

	rs.logger.Info("refresh scheduler started",
		logger.Duration("interval", rs.interval),
		logger.Duration("startup_delay", rs.startupDelay))

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		defer startup.Stop()
		defer ticker.Stop()
		for {
			select {
			case <-startup.C:
				rs.trigger(ctx, TriggerStartup)
			case <-ticker.C:
				rs.trigger(ctx, TriggerInterval)
			case <-rs.manualTrigger:
				rs.logger.Info("manual refresh triggered")
				rs.trigger(ctx, TriggerManual)
			case <-rs.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop ends the loop and waits for an in-flight sweep to return.
func (rs *RefreshScheduler) Stop() {
	close(rs.stopCh)
	rs.wg.Wait()
}

// Running reports whether a sweep is in progress.
func (rs *RefreshScheduler) Running() bool {
	return rs.running.Load()
}

// trigger starts a sweep unless one is already running.
func (rs *RefreshScheduler) trigger(ctx context.Context, reason string) bool {
	if !rs.running.CompareAndSwap(false, true) {
		rs.logger.Info("sweep already running, skipping trigger", logger.String("trigger", reason))
		return false
	}

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		defer rs.running.Store(false)

		if _, err := rs.sweeper.RefreshAll(ctx, reason); err != nil {
			rs.logger.Error("sweep failed", logger.String("trigger", reason), logger.Error(err))
		}
	}()
	return true
}
