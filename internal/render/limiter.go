package render

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limited caps the number of simultaneous renders across every caller
// (scheduled sweeps and on-demand requests share the same budget).
type Limited struct {
	next Renderer
	sem  *semaphore.Weighted
}

// NewLimited wraps next so at most max renders run at once.
func NewLimited(next Renderer, max int) *Limited {
	if max < 1 {
		max = 1
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(int64(max))}
}

// Render waits for a slot, then delegates. Time spent waiting does not count
// against the render timeout; the caller's ctx bounds it instead.
func (l *Limited) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", classify(url, err, KindUnknown)
	}
	defer l.sem.Release(1)

	return l.next.Render(ctx, url, timeout)
}
