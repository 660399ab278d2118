package refresh

import (
	"context"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

// Recorder journals sweep outcomes. Errors are logged by the orchestrator
// and never fail a refresh.
type Recorder interface {
	RecordSweep(ctx context.Context, report domain.SweepReport) error
	RecordFailure(ctx context.Context, f domain.SweepFailure) error
	ClearFailure(ctx context.Context, productID string) error
}

// NopRecorder is used when no journal is configured.
type NopRecorder struct{}

func (NopRecorder) RecordSweep(context.Context, domain.SweepReport) error  { return nil }
func (NopRecorder) RecordFailure(context.Context, domain.SweepFailure) error { return nil }
func (NopRecorder) ClearFailure(context.Context, string) error              { return nil }
