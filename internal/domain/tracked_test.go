package domain

import (
	"errors"
	"testing"
	"time"
)

func obsAt(id string, price float64, minute int) PriceObservation {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return PriceObservation{
		ID:         id,
		ProductID:  "p1",
		Price:      price,
		Currency:   "USD",
		ObservedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func TestBuildTrackedProduct_NoObservations(t *testing.T) {
	_, err := BuildTrackedProduct(Product{ID: "p1"}, nil)
	if !errors.Is(err, ErrNoObservations) {
		t.Fatalf("BuildTrackedProduct() error = %v, want ErrNoObservations", err)
	}
}

func TestBuildTrackedProduct_SingleObservation(t *testing.T) {
	view, err := BuildTrackedProduct(Product{ID: "p1", StockStatus: InStock}, []PriceObservation{obsAt("o1", 42, 1)})
	if err != nil {
		t.Fatalf("BuildTrackedProduct() error = %v", err)
	}

	if view.Latest.Price != 42 {
		t.Errorf("Latest.Price = %v, want 42", view.Latest.Price)
	}
	if view.Previous != nil {
		t.Errorf("Previous = %+v, want nil with one observation", view.Previous)
	}
	if view.Lowest != nil {
		t.Errorf("Lowest = %+v, want nil with one observation", view.Lowest)
	}
}

func TestBuildTrackedProduct_Scenario(t *testing.T) {
	p := Product{ID: "p1", URL: "https://example.com/x", StockStatus: InStock}
	// Deliberately out of order: the view must sort by time.
	obs := []PriceObservation{
		obsAt("o3", 90, 3),
		obsAt("o1", 100, 1),
		obsAt("o2", 80, 2),
	}

	view, err := BuildTrackedProduct(p, obs)
	if err != nil {
		t.Fatalf("BuildTrackedProduct() error = %v", err)
	}

	if view.Latest.Price != 90 || !view.Latest.ObservedAt.Equal(obsAt("", 0, 3).ObservedAt) {
		t.Errorf("Latest = %+v, want 90@t3", view.Latest)
	}
	if view.Previous == nil || view.Previous.Price != 80 || !view.Previous.ObservedAt.Equal(obsAt("", 0, 2).ObservedAt) {
		t.Errorf("Previous = %+v, want 80@t2", view.Previous)
	}
	if view.Lowest == nil || view.Lowest.Price != 80 || !view.Lowest.ObservedAt.Equal(obsAt("", 0, 2).ObservedAt) {
		t.Errorf("Lowest = %+v, want 80@t2", view.Lowest)
	}
	if view.ObservationCount != 3 {
		t.Errorf("ObservationCount = %d, want 3", view.ObservationCount)
	}

	// input order must be preserved
	if obs[0].ID != "o3" {
		t.Error("BuildTrackedProduct() reordered its input")
	}
}

func TestBuildTrackedProduct_LowestTieGoesToEarliest(t *testing.T) {
	obs := []PriceObservation{
		obsAt("o1", 50, 1),
		obsAt("o2", 70, 2),
		obsAt("o3", 50, 3),
		obsAt("o4", 60, 4),
	}

	view, err := BuildTrackedProduct(Product{ID: "p1"}, obs)
	if err != nil {
		t.Fatalf("BuildTrackedProduct() error = %v", err)
	}
	if view.Lowest == nil || !view.Lowest.ObservedAt.Equal(obs[0].ObservedAt) {
		t.Errorf("Lowest = %+v, want the earliest of the tied minimum", view.Lowest)
	}
}

func TestBuildTrackedProduct_LastCheckedFallback(t *testing.T) {
	obs := []PriceObservation{obsAt("o1", 10, 5)}

	view, _ := BuildTrackedProduct(Product{ID: "p1"}, obs)
	if !view.LastChecked.Equal(obs[0].ObservedAt) {
		t.Errorf("LastChecked = %v, want latest observation time", view.LastChecked)
	}

	checked := obs[0].ObservedAt.Add(time.Hour)
	view, _ = BuildTrackedProduct(Product{ID: "p1", LastChecked: &checked}, obs)
	if !view.LastChecked.Equal(checked) {
		t.Errorf("LastChecked = %v, want product last_checked", view.LastChecked)
	}

	if view.StockStatus != Unknown {
		t.Errorf("StockStatus = %q, want Unknown for empty status", view.StockStatus)
	}
}
