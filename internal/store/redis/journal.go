// Package redis keeps a short operational journal of sweeps and per-product
// failures. It is observability only: the product store stays authoritative.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

const (
	// DefaultHistory is how many sweep reports stay in the list.
	DefaultHistory = 20
	// DefaultFailureTTL bounds how long a failure record survives without a fresh success.
	DefaultFailureTTL = 7 * 24 * time.Hour
)

// Journal stores sweep reports and failures in Redis.
type Journal struct {
	client     *redis.Client
	history    int64
	failureTTL time.Duration
}

func NewJournal(client *redis.Client) *Journal {
	return &Journal{
		client:     client,
		history:    DefaultHistory,
		failureTTL: DefaultFailureTTL,
	}
}

// RecordSweep stores report as the latest sweep and pushes it to the capped history.
func (j *Journal) RecordSweep(ctx context.Context, report domain.SweepReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep report: %w", err)
	}

	pipe := j.client.TxPipeline()
	pipe.Set(ctx, KeyLastSweep, data, 0)
	pipe.LPush(ctx, KeySweeps, data)
	pipe.LTrim(ctx, KeySweeps, 0, j.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}
	return nil
}

// LastSweep returns the most recent report or store.ErrNotFound.
func (j *Journal) LastSweep(ctx context.Context) (*domain.SweepReport, error) {
	data, err := j.client.Get(ctx, KeyLastSweep).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sweep: %w", err)
	}

	var report domain.SweepReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sweep report: %w", err)
	}
	return &report, nil
}

// RecentSweeps returns up to n reports, newest first.
func (j *Journal) RecentSweeps(ctx context.Context, n int64) ([]domain.SweepReport, error) {
	items, err := j.client.LRange(ctx, KeySweeps, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}

	out := make([]domain.SweepReport, 0, len(items))
	for _, it := range items {
		var r domain.SweepReport
		if err := json.Unmarshal([]byte(it), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (j *Journal) RecordFailure(ctx context.Context, f domain.SweepFailure) error {
	if f.ProductID == "" {
		return nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal failure: %w", err)
	}
	if err := j.client.Set(ctx, FailureKey(f.ProductID), data, j.failureTTL).Err(); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

func (j *Journal) ClearFailure(ctx context.Context, productID string) error {
	if err := j.client.Del(ctx, FailureKey(productID)).Err(); err != nil {
		return fmt.Errorf("failed to clear failure: %w", err)
	}
	return nil
}

// LastFailure returns the recorded failure of a product or store.ErrNotFound.
func (j *Journal) LastFailure(ctx context.Context, productID string) (*domain.SweepFailure, error) {
	data, err := j.client.Get(ctx, FailureKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}

	var f domain.SweepFailure
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure: %w", err)
	}
	return &f, nil
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}
