package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

// Times are stored as fixed-width UTC text so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *Store) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", v, err)
	}
	return t.In(s.loc), nil
}

type productRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	URL         string         `db:"url"`
	Title       sql.NullString `db:"title"`
	Domain      sql.NullString `db:"domain"`
	StockStatus string         `db:"stock_status"`
	LastChecked sql.NullString `db:"last_checked"`
	CreatedAt   string         `db:"created_at"`
}

const productColumns = `id, owner_id, url, title, domain, stock_status, last_checked, created_at`

func (s *Store) toProduct(r productRow) (domain.Product, error) {
	created, err := s.parseTime(r.CreatedAt)
	if err != nil {
		return domain.Product{}, err
	}

	p := domain.Product{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		URL:         r.URL,
		Title:       nullable(r.Title),
		Domain:      nullable(r.Domain),
		StockStatus: domain.StockStatus(r.StockStatus),
		CreatedAt:   created,
	}
	if r.LastChecked.Valid {
		lc, err := s.parseTime(r.LastChecked.String)
		if err != nil {
			return domain.Product{}, err
		}
		p.LastChecked = &lc
	}
	return p, nil
}

type observationRow struct {
	ID         string  `db:"id"`
	ProductID  string  `db:"product_id"`
	Price      float64 `db:"price"`
	Currency   string  `db:"currency"`
	ObservedAt string  `db:"observed_at"`
}

const observationColumns = `id, product_id, price, currency, observed_at`

func (s *Store) toObservation(r observationRow) (domain.PriceObservation, error) {
	at, err := s.parseTime(r.ObservedAt)
	if err != nil {
		return domain.PriceObservation{}, err
	}
	return domain.PriceObservation{
		ID:         r.ID,
		ProductID:  r.ProductID,
		Price:      r.Price,
		Currency:   r.Currency,
		ObservedAt: at,
	}, nil
}

type providerRow struct {
	ID           string `db:"id"`
	OwnerID      string `db:"owner_id"`
	ProviderName string `db:"provider_name"`
	APIKey       string `db:"api_key"`
	ModelName    string `db:"model_name"`
	Active       bool   `db:"is_active"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

const providerColumns = `id, owner_id, provider_name, api_key, model_name, is_active, created_at, updated_at`

func (s *Store) toProviderConfig(r providerRow) (domain.ProviderConfig, error) {
	created, err := s.parseTime(r.CreatedAt)
	if err != nil {
		return domain.ProviderConfig{}, err
	}
	updated, err := s.parseTime(r.UpdatedAt)
	if err != nil {
		return domain.ProviderConfig{}, err
	}
	return domain.ProviderConfig{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		ProviderName: r.ProviderName,
		APIKey:       r.APIKey,
		ModelName:    r.ModelName,
		Active:       r.Active,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
