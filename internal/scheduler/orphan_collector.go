package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

// DefaultOrphanThreshold is the minimum age of a product without observations before removal.
const DefaultOrphanThreshold = 24 * time.Hour

type OrphanStore interface {
	DeleteOrphans(ctx context.Context, cutoff time.Time) (int, error)
}

// OrphanCollector removes products that never received an observation.
// They can't be listed and only come from legacy data or interrupted imports.
type OrphanCollector struct {
	store     OrphanStore
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

func NewOrphanCollector(store OrphanStore, log logger.Logger, interval, threshold time.Duration) *OrphanCollector {
	if threshold == 0 {
		threshold = DefaultOrphanThreshold
	}

	return &OrphanCollector{
		store:     store,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs one collection, then repeats on every interval.
func (oc *OrphanCollector) Start(ctx context.Context) error {
	if _, err := oc.Collect(ctx); err != nil {
		oc.logger.Warn("initial orphan collection failed", logger.Error(err))
	}

	ticker := time.NewTicker(oc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := oc.Collect(ctx); err != nil {
					oc.logger.Error("orphan collection failed", logger.Error(err))
				}
			case <-oc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (oc *OrphanCollector) Stop() {
	close(oc.stopCh)
}

// Collect deletes orphans older than the threshold and returns how many went.
func (oc *OrphanCollector) Collect(ctx context.Context) (int, error) {
	cutoff := oc.now().Add(-oc.threshold)

	n, err := oc.store.DeleteOrphans(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		oc.logger.Info("orphan products removed",
			logger.Int("deleted", n),
			logger.Time("cutoff", cutoff))
	} else {
		oc.logger.Debug("no orphan products to collect")
	}
	return n, nil
}
