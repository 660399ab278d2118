package domain

import "time"

// SweepFailure records one product that could not be refreshed during a sweep.
type SweepFailure struct {
	ProductID string    `json:"product_id"`
	URL       string    `json:"url"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// SweepReport summarizes one full batch refresh. It is best-effort and
// only ever logged or journaled, never returned as an error.
type SweepReport struct {
	Trigger   string         `json:"trigger"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Failures  []SweepFailure `json:"failures,omitempty"`
}
