package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

// rawFields mirrors what models actually send back: price may be a number
// or a string, and the domain shows up under either key.
type rawFields struct {
	Title       string          `json:"title"`
	Price       json.RawMessage `json:"price"`
	Currency    string          `json:"currency"`
	StockStatus string          `json:"stock_status"`
	Website     *string         `json:"website"`
	Domain      *string         `json:"domain"`
}

// ParseFields coerces a raw provider answer into Fields. A payload that is
// not JSON gets exactly one more attempt with markdown code fences removed.
func ParseFields(raw string) (Fields, error) {
	var rf rawFields
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &rf); err != nil {
		stripped := stripFences(raw)
		if err2 := json.Unmarshal([]byte(stripped), &rf); err2 != nil {
			return Fields{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err2)
		}
	}
	return rf.toFields()
}

func (rf rawFields) toFields() (Fields, error) {
	title := strings.TrimSpace(rf.Title)
	if title == "" {
		return Fields{}, fmt.Errorf("%w: missing title", ErrMalformedExtraction)
	}

	price, err := parsePrice(rf.Price)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	currency := strings.TrimSpace(rf.Currency)
	if currency == "" {
		return Fields{}, fmt.Errorf("%w: missing currency", ErrMalformedExtraction)
	}

	rawStatus := strings.TrimSpace(rf.StockStatus)
	if rawStatus == "" {
		return Fields{}, fmt.Errorf("%w: missing stock_status", ErrMalformedExtraction)
	}
	status, ok := domain.ParseStockStatus(rawStatus)
	if !ok {
		return Fields{}, fmt.Errorf("%w: stock status %q", ErrMalformedExtraction, rawStatus)
	}

	site := rf.Website
	if site == nil || strings.TrimSpace(*site) == "" {
		site = rf.Domain
	}

	return Fields{
		Title:       title,
		Price:       price,
		Currency:    currency,
		StockStatus: status,
		Domain:      cleanDomain(site),
	}, nil
}

// stripFences pulls the body out of ```json ... ``` or ``` ... ``` blocks.
func stripFences(s string) string {
	marker := "```json"
	i := strings.Index(s, marker)
	if i < 0 {
		marker = "```"
		i = strings.Index(s, marker)
	}
	if i < 0 {
		return strings.TrimSpace(s)
	}
	body := s[i+len(marker):]
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(body)
}

func parsePrice(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing price")
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return checkPrice(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("price is neither number nor string: %s", raw)
	}

	n, err := parsePriceString(s)
	if err != nil {
		return 0, err
	}
	return checkPrice(n)
}

func checkPrice(n float64) (float64, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("price is not finite")
	}
	if n < 0 {
		return 0, fmt.Errorf("negative price %v", n)
	}
	return n, nil
}

// parsePriceString accepts "€1,299.00", "1.299,50", "49,9", "249", "$ 9.99".
// When both separators appear the last one is the decimal point. A lone comma
// is decimal only with one or two trailing digits. Thousands groups must have
// exactly three digits; anything else is rejected rather than guessed.
func parsePriceString(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if !strings.ContainsAny(clean, "0123456789") {
		return 0, fmt.Errorf("price %q has no digits", s)
	}

	lastDot := strings.LastIndexByte(clean, '.')
	lastComma := strings.LastIndexByte(clean, ',')

	intPart, frac := clean, ""
	hasFrac := false
	var thousands byte

	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec, at := byte('.'), lastDot
		thousands = ','
		if lastComma > lastDot {
			dec, at, thousands = ',', lastComma, '.'
		}
		intPart, frac, hasFrac = clean[:at], clean[at+1:], true
		if strings.IndexByte(intPart, dec) >= 0 {
			return 0, fmt.Errorf("price %q: ambiguous separators", s)
		}
	case lastComma >= 0:
		tail := len(clean) - lastComma - 1
		if strings.Count(clean, ",") == 1 && (tail == 1 || tail == 2) {
			intPart, frac, hasFrac = clean[:lastComma], clean[lastComma+1:], true
		} else {
			thousands = ','
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") == 1 {
			intPart, frac, hasFrac = clean[:lastDot], clean[lastDot+1:], true
		} else {
			thousands = '.'
		}
	}

	if thousands != 0 {
		if !validGroups(intPart, thousands) {
			return 0, fmt.Errorf("price %q: ambiguous separators", s)
		}
		intPart = strings.ReplaceAll(intPart, string(thousands), "")
	}

	num := intPart
	if hasFrac {
		num += "." + frac
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %v", s, err)
	}
	return n, nil
}

// validGroups checks "1,299,000" style grouping: a leading group of 1-3
// digits, then groups of exactly 3.
func validGroups(s string, sep byte) bool {
	for i, g := range strings.Split(s, string(sep)) {
		if g == "" || strings.Trim(g, "0123456789") != "" {
			return false
		}
		if i == 0 && len(g) > 3 && strings.IndexByte(s, sep) >= 0 {
			return false
		}
		if i > 0 && len(g) != 3 {
			return false
		}
	}
	return true
}

func cleanDomain(s *string) *string {
	if s == nil {
		return nil
	}
	d := strings.TrimSpace(*s)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimSuffix(d, "/")
	if d == "" {
		return nil
	}
	return &d
}
