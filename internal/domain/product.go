package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StockStatus is the closed availability enum reported by extractors.
// The string values are the wire and storage representation.
type StockStatus string

const (
	InStock    StockStatus = "In Stock"
	OutOfStock StockStatus = "Out of Stock"
	Unknown    StockStatus = "Unknown"
)

// ParseStockStatus maps loose provider spellings ("in_stock", "InStock",
// "out of stock") onto the closed set. Anything else is rejected.
func ParseStockStatus(s string) (StockStatus, bool) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))

	switch key {
	case "instock":
		return InStock, true
	case "outofstock":
		return OutOfStock, true
	case "unknown":
		return Unknown, true
	default:
		return "", false
	}
}

// Valid reports whether s is one of the closed enum values.
func (s StockStatus) Valid() bool {
	return s == InStock || s == OutOfStock || s == Unknown
}

// Product represents a tracked URL and its most recently observed metadata.
//
// A Product is uniquely identified by (OwnerID, URL). Re-submitting the same
// URL for the same owner updates the existing row.
type Product struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	// URL is normalized by NormalizeURL before it reaches storage.
	URL string `json:"url"`

	// Title and Domain stay nil until the first successful extraction.
	Title  *string `json:"title,omitempty"`
	Domain *string `json:"domain,omitempty"`

	StockStatus StockStatus `json:"stock_status"`

	// LastChecked is nil until the first successful refresh.
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PriceObservation is one immutable price sample. Observations are append-only.
type PriceObservation struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observed_at"`
}

// Refresh is the outcome of one successful fetch+extract, ready to be committed.
// When ProductID is set the existing row is updated; otherwise the product
// is upserted by (OwnerID, URL).
type Refresh struct {
	ProductID   string
	OwnerID     string
	URL         string
	Title       string
	Domain      *string
	StockStatus StockStatus
	Price       float64
	Currency    string
	CheckedAt   time.Time
}

// Validate rejects refreshes that would violate storage invariants.
func (r Refresh) Validate() error {
	if r.ProductID == "" && (r.OwnerID == "" || r.URL == "") {
		return errors.New("refresh needs a product id or an owner and url")
	}
	if r.Price < 0 {
		return fmt.Errorf("negative price %v", r.Price)
	}
	if !r.StockStatus.Valid() {
		return fmt.Errorf("invalid stock status %q", r.StockStatus)
	}
	if r.CheckedAt.IsZero() {
		return errors.New("refresh without timestamp")
	}
	return nil
}

// ErrInvalidURL is returned for URLs that cannot be tracked.
var ErrInvalidURL = errors.New("invalid product url")

// NormalizeURL validates an absolute http(s) URL and returns its canonical form:
// lowercase scheme and host, no fragment, and "/" for an empty path.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// HostOf returns the host of a URL without port, or "" if it cannot be parsed.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
