package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

// settleDelay gives late client-side sections a moment after load.
const settleDelay = time.Second

// ChromeRenderer launches one headless Chrome process per call.
type ChromeRenderer struct {
	execPath string
	logger   logger.Logger
}

// NewChromeRenderer creates a renderer. An empty execPath lets chromedp locate the browser.
func NewChromeRenderer(execPath string, log logger.Logger) *ChromeRenderer {
	return &ChromeRenderer{execPath: execPath, logger: log}
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", "new"),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}
	return opts
}

// Render navigates to url and returns the outer HTML of the document.
func (r *ChromeRenderer) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	start := time.Now()
	r.logger.Debug("rendering page with chrome", logger.String("url", url))

	var page string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", classify(url, fmt.Errorf("render aborted after %v: %w", time.Since(start), ctx.Err()), KindTimeout)
		}
		return "", classify(url, err, KindNavigation)
	}

	r.logger.Debug("rendered page",
		logger.String("url", url),
		logger.Int("bytes", len(page)),
		logger.Duration("elapsed", time.Since(start)))

	return page, nil
}
