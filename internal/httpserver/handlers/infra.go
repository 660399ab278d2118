package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode         string                     `json:"mode"`
	Components   map[string]componentStatus `json:"components"`
	SweepRunning bool                       `json:"sweep_running"`
	LastSweep    *domain.SweepReport        `json:"last_sweep,omitempty"`
	RecentSweeps []domain.SweepReport       `json:"recent_sweeps,omitempty"`
}

const recentSweepCount = 5

// Infra reports the state of the store, the sweep journal and the scheduler.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		components := map[string]componentStatus{
			"store": checkStore(ctx, d),
			"redis": checkJournal(ctx, d),
		}

		resp := infraResponse{
			Mode:       determineMode(components),
			Components: components,
		}
		if d.SweepRunning != nil {
			resp.SweepRunning = d.SweepRunning()
		}
		if d.Journal != nil && components["redis"].OK {
			last, err := d.Journal.LastSweep(ctx)
			if err == nil {
				resp.LastSweep = last
			} else if !errors.Is(err, store.ErrNotFound) {
				d.Logger.Warnf("infra: cannot read last sweep: %v", err)
			}
			recent, err := d.Journal.RecentSweeps(ctx, recentSweepCount)
			if err != nil {
				d.Logger.Warnf("infra: cannot read sweep history: %v", err)
			} else {
				resp.RecentSweeps = recent
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func determineMode(components map[string]componentStatus) string {
	if s, ok := components["store"]; ok && !s.OK {
		return "critical"
	}
	if r, ok := components["redis"]; ok && !r.OK && r.Mode != "disabled" {
		return "degraded"
	}
	return "operational"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Impact: "tracking-unavailable", Error: err.Error()}
	}
	return componentStatus{OK: true}
}

func checkJournal(ctx context.Context, d deps.Deps) componentStatus {
	if d.Journal == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "sweep-journal-disabled",
		}
	}
	if err := d.Journal.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "sweep-journal-unavailable",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
