package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/utils"
)

const (
	// maxBodyBytes caps what we read from a product page.
	maxBodyBytes = 8 << 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Safari/537.36"
)

// HTTPRenderer fetches the raw server response without executing scripts.
// Useful for static shops and for environments without a browser.
type HTTPRenderer struct {
	client *http.Client
	logger logger.Logger
}

// NewHTTPRenderer creates a renderer. A nil client uses a fresh http.Client.
func NewHTTPRenderer(client *http.Client, log logger.Logger) *HTTPRenderer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRenderer{client: client, logger: log}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", classify(url, err, KindNavigation)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", classify(url, err, KindNavigation)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: KindNavigation, URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classify(url, err, KindUnknown)
	}

	r.logger.Debug("fetched page over http",
		logger.String("url", url),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)))

	return string(body), nil
}
