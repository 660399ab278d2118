package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseStockStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   StockStatus
		wantOK bool
	}{
		{in: "In Stock", want: InStock, wantOK: true},
		{in: "in_stock", want: InStock, wantOK: true},
		{in: "InStock", want: InStock, wantOK: true},
		{in: "Out of Stock", want: OutOfStock, wantOK: true},
		{in: "out-of-stock", want: OutOfStock, wantOK: true},
		{in: " unknown ", want: Unknown, wantOK: true},
		{in: "Backorder", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStockStatus(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseStockStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare host gets slash", in: "https://Example.COM", want: "https://example.com/"},
		{name: "fragment dropped", in: "https://example.com/x#reviews", want: "https://example.com/x"},
		{name: "query kept", in: " http://shop.example.com/p?id=3 ", want: "http://shop.example.com/p?id=3"},
		{name: "uppercase scheme", in: "HTTPS://example.com/a", want: "https://example.com/a"},
		{name: "ftp rejected", in: "ftp://example.com/file", wantErr: true},
		{name: "relative rejected", in: "/just/a/path", wantErr: true},
		{name: "empty rejected", in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("NormalizeURL(%q) error = %v, want ErrInvalidURL", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://shop.example.com:8443/p"); got != "shop.example.com" {
		t.Errorf("HostOf() = %q, want shop.example.com", got)
	}
}

func TestRefreshValidate(t *testing.T) {
	now := time.Now()
	valid := Refresh{OwnerID: "u1", URL: "https://example.com/", StockStatus: InStock, Price: 1, Currency: "USD", CheckedAt: now}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	negative := valid
	negative.Price = -1
	if err := negative.Validate(); err == nil {
		t.Error("Validate() should reject negative price")
	}

	noTarget := valid
	noTarget.OwnerID = ""
	if err := noTarget.Validate(); err == nil {
		t.Error("Validate() should reject refresh without product id or owner")
	}

	badStatus := valid
	badStatus.StockStatus = "Maybe"
	if err := badStatus.Validate(); err == nil {
		t.Error("Validate() should reject status outside the enum")
	}
}
