package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoObservations means a product has no price samples yet and cannot be
// presented. Listing treats it as "not yet trackable".
var ErrNoObservations = errors.New("product has no price observations")

// PricePoint is a price at a point in time, as shown in the derived view.
type PricePoint struct {
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observed_at"`
}

// TrackedProduct is the read-time view of a Product plus its observation log.
// It is never persisted.
type TrackedProduct struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Title       *string     `json:"title,omitempty"`
	Domain      *string     `json:"website,omitempty"`
	StockStatus StockStatus `json:"stock_status"`
	LastChecked time.Time   `json:"last_checked"`

	Latest   PricePoint  `json:"latest"`
	Previous *PricePoint `json:"previous,omitempty"`
	Lowest   *PricePoint `json:"lowest,omitempty"`

	ObservationCount int `json:"observation_count"`
}

// BuildTrackedProduct derives latest/previous/lowest from the observation log.
//
//   - latest: last observation by time (required)
//   - previous: second-to-last, only with >= 2 observations
//   - lowest: minimum price, only with >= 2 observations; ties go to the earliest
//
// The input slice is not modified.
func BuildTrackedProduct(p Product, observations []PriceObservation) (TrackedProduct, error) {
	if len(observations) == 0 {
		return TrackedProduct{}, fmt.Errorf("product %s: %w", p.ID, ErrNoObservations)
	}

	obs := make([]PriceObservation, len(observations))
	copy(obs, observations)
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].ObservedAt.Before(obs[j].ObservedAt)
	})

	latest := obs[len(obs)-1]

	status := p.StockStatus
	if !status.Valid() {
		status = Unknown
	}

	lastChecked := latest.ObservedAt
	if p.LastChecked != nil {
		lastChecked = *p.LastChecked
	}

	view := TrackedProduct{
		ID:               p.ID,
		URL:              p.URL,
		Title:            p.Title,
		Domain:           p.Domain,
		StockStatus:      status,
		LastChecked:      lastChecked,
		Latest:           toPoint(latest),
		ObservationCount: len(obs),
	}

	if len(obs) >= 2 {
		prev := toPoint(obs[len(obs)-2])
		view.Previous = &prev

		lowest := obs[0]
		for _, o := range obs[1:] {
			if o.Price < lowest.Price {
				lowest = o
			}
		}
		low := toPoint(lowest)
		view.Lowest = &low
	}

	return view, nil
}

func toPoint(o PriceObservation) PricePoint {
	return PricePoint{
		Price:      o.Price,
		Currency:   o.Currency,
		ObservedAt: o.ObservedAt,
	}
}
