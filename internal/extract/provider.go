// Package extract turns normalized page text into structured product fields
// using a pluggable inference provider.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
)

var (
	// ErrNoProviderConfigured means the owner has no active config and no default credential exists.
	ErrNoProviderConfigured = errors.New("no extraction provider configured")
	// ErrMalformedExtraction means the provider answered but the payload is unusable.
	ErrMalformedExtraction = errors.New("malformed extraction result")
	// ErrExtractorUnavailable wraps transport failures and non-2xx provider answers.
	ErrExtractorUnavailable = errors.New("extractor unavailable")
	// ErrUnknownProvider is returned for names missing from the registry.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is one inference backend. Providers are stateless: credential and
// model travel with each call.
type Provider interface {
	Name() string
	ListModels(ctx context.Context, apiKey string) ([]string, error)
	// Extract returns the raw model answer; callers coerce it with ParseFields.
	Extract(ctx context.Context, text, apiKey, model string) (string, error)
	TestConnection(ctx context.Context, apiKey, model string) error
}

// Fields is the structured result of one extraction.
type Fields struct {
	Title       string             `json:"title"`
	Price       float64            `json:"price"`
	Currency    string             `json:"currency"`
	StockStatus domain.StockStatus `json:"stock_status"`
	Domain      *string            `json:"website,omitempty"`
}

const systemPrompt = `You are an e-commerce product extraction assistant.
Extract the product details from the provided page text.
Guidelines:
- Provide a concise product title.
- Return price as a numeric value (remove currency symbols, commas, and text). If you see a range, pick the most representative single price.
- Prefer ISO currency codes (e.g. USD, INR); otherwise use the primary currency symbol.
- Map availability to exactly one of: "In Stock", "Out of Stock", "Unknown".
- If you can identify the domain of the product page, return it without protocol (e.g. amazon.in) as "website". Leave it empty if uncertain.
Return ONLY a JSON object with the keys title, price, currency, stock_status, website. No additional text.`

func userPrompt(text string) string {
	return "Page text:\n" + text
}

// unavailable tags transport level failures.
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExtractorUnavailable, provider, err)
}
