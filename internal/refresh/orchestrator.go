// Package refresh runs the render -> normalize -> extract -> persist pipeline
// for single products (on demand) and for the whole catalogue (sweeps).
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/extract"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/render"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type Normalizer interface {
	Normalize(raw string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, text, ownerID string) (extract.Fields, error)
}

type Options struct {
	Workers       int            // concurrent items per sweep, >= 1
	RenderTimeout time.Duration  // hard timeout per render
	Location      *time.Location // timezone for recorded timestamps
	Recorder      Recorder       // optional sweep journal
}

type Orchestrator struct {
	renderer   render.Renderer
	normalizer Normalizer
	extractor  Extractor
	store      store.Store
	recorder   Recorder

	workers       int
	renderTimeout time.Duration
	loc           *time.Location
	now           func() time.Time

	locks  *keyedMutex
	logger logger.Logger
}

func New(r render.Renderer, n Normalizer, e Extractor, s store.Store, opts Options, log logger.Logger) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}

	return &Orchestrator{
		renderer:      r,
		normalizer:    n,
		extractor:     e,
		store:         s,
		recorder:      opts.Recorder,
		workers:       opts.Workers,
		renderTimeout: opts.RenderTimeout,
		loc:           opts.Location,
		now:           time.Now,
		locks:         newKeyedMutex(),
		logger:        log,
	}
}

// Registration is the on-demand result: what was fetched, what was
// extracted, and the fresh derived view.
type Registration struct {
	PageContent string                `json:"page_content"`
	Structured  extract.Fields        `json:"structured"`
	Product     domain.TrackedProduct `json:"product"`
}

// run executes fetch, normalize and extract. Nothing is written.
func (o *Orchestrator) run(ctx context.Context, ownerID, productID, url string) (string, extract.Fields, error) {
	fail := func(stage Stage, err error) (string, extract.Fields, error) {
		return "", extract.Fields{}, &StageError{Stage: stage, URL: url, ProductID: productID, Err: err}
	}
	trace := func(stage Stage) {
		o.logger.Debug("refresh stage", logger.String("url", url), logger.String("stage", string(stage)))
	}

	trace(StageFetching)
	page, err := o.renderer.Render(ctx, url, o.renderTimeout)
	if err != nil {
		return fail(StageFetching, err)
	}

	trace(StageNormalizing)
	text, err := o.normalizer.Normalize(page)
	if err != nil {
		return fail(StageNormalizing, err)
	}

	trace(StageExtracting)
	fields, err := o.extractor.Extract(ctx, text, ownerID)
	if err != nil {
		return fail(StageExtracting, err)
	}

	return page, fields, nil
}

func (o *Orchestrator) checkedAt() time.Time {
	return o.now().In(o.loc)
}

// RefreshOne re-derives one product and commits the result atomically.
// On failure nothing is written and the error is a *StageError.
func (o *Orchestrator) RefreshOne(ctx context.Context, p domain.Product) error {
	unlock := o.locks.Lock(productKey(p.OwnerID, p.URL))
	defer unlock()

	_, fields, err := o.run(ctx, p.OwnerID, p.ID, p.URL)
	if err == nil {
		_, err = o.store.ApplyRefresh(ctx, domain.Refresh{
			ProductID:   p.ID,
			Title:       fields.Title,
			Domain:      fields.Domain,
			StockStatus: fields.StockStatus,
			Price:       fields.Price,
			Currency:    fields.Currency,
			CheckedAt:   o.checkedAt(),
		})
		if err != nil {
			err = &StageError{Stage: StagePersisting, URL: p.URL, ProductID: p.ID, Err: err}
		}
	}

	if err != nil {
		o.logFailure(p.ID, p.URL, err)
		o.journalFailure(ctx, p.ID, p.URL, err)
		return err
	}

	o.logger.Info("product refreshed",
		logger.String("product_id", p.ID),
		logger.String("url", p.URL),
		logger.Float64("price", fields.Price),
		logger.String("currency", fields.Currency),
		logger.String("stock_status", string(fields.StockStatus)))

	if err := o.recorder.ClearFailure(ctx, p.ID); err != nil {
		o.logger.Warn("failed to clear failure record", logger.String("product_id", p.ID), logger.Error(err))
	}
	return nil
}

// RefreshAll sweeps every product with bounded concurrency. Item failures
// land in the report; only a store failure at start is returned.
func (o *Orchestrator) RefreshAll(ctx context.Context, trigger string) (domain.SweepReport, error) {
	report := domain.SweepReport{Trigger: trigger, StartedAt: o.checkedAt()}
	start := time.Now()

	products, err := o.store.ListProducts(ctx)
	if err != nil {
		o.logger.Error("sweep aborted: cannot list products", logger.Error(err))
		return report, fmt.Errorf("list products: %w", err)
	}
	report.Total = len(products)

	o.logger.Info("sweep started",
		logger.String("trigger", trigger),
		logger.Int("products", len(products)),
		logger.Int("workers", o.workers))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.workers)

	for _, p := range products {
		p := p
		g.Go(func() error {
			err := o.RefreshOne(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Failures = append(report.Failures, failureOf(p.ID, p.URL, err, o.checkedAt()))
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)

	o.logger.Info("sweep finished",
		logger.String("trigger", trigger),
		logger.Int("total", report.Total),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Duration("elapsed", report.Duration))

	if err := o.recorder.RecordSweep(ctx, report); err != nil {
		o.logger.Warn("failed to journal sweep", logger.Error(err))
	}

	return report, nil
}

// FetchAndRegister fetches url for ownerID, creating the product if needed.
// Every failure is returned to the caller; nothing is written unless all
// stages succeed.
func (o *Orchestrator) FetchAndRegister(ctx context.Context, rawURL, ownerID string) (*Registration, error) {
	url, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(productKey(ownerID, url))
	defer unlock()

	page, fields, err := o.run(ctx, ownerID, "", url)
	if err != nil {
		o.logFailure("", url, err)
		return nil, err
	}

	site := fields.Domain
	if site == nil {
		if host := domain.HostOf(url); host != "" {
			site = &host
		}
	}

	product, err := o.store.ApplyRefresh(ctx, domain.Refresh{
		OwnerID:     ownerID,
		URL:         url,
		Title:       fields.Title,
		Domain:      site,
		StockStatus: fields.StockStatus,
		Price:       fields.Price,
		Currency:    fields.Currency,
		CheckedAt:   o.checkedAt(),
	})
	if err != nil {
		err = &StageError{Stage: StagePersisting, URL: url, Err: err}
		o.logFailure("", url, err)
		return nil, err
	}

	view, err := o.store.GetTracked(ctx, product.ID)
	if err != nil {
		return nil, &StageError{Stage: StagePersisting, URL: url, ProductID: product.ID, Err: err}
	}

	if err := o.recorder.ClearFailure(ctx, product.ID); err != nil {
		o.logger.Warn("failed to clear failure record", logger.String("product_id", product.ID), logger.Error(err))
	}

	o.logger.Info("product registered",
		logger.String("product_id", product.ID),
		logger.String("owner_id", ownerID),
		logger.String("url", url))

	return &Registration{PageContent: page, Structured: fields, Product: *view}, nil
}

func (o *Orchestrator) logFailure(productID, url string, err error) {
	stage := StageFailed
	if s, ok := stageOf(err); ok {
		stage = s
	}
	o.logger.Warn("refresh failed",
		logger.String("product_id", productID),
		logger.String("url", url),
		logger.String("stage", string(stage)),
		logger.Error(err))
}

func (o *Orchestrator) journalFailure(ctx context.Context, productID, url string, err error) {
	if jerr := o.recorder.RecordFailure(ctx, failureOf(productID, url, err, o.checkedAt())); jerr != nil {
		o.logger.Warn("failed to journal failure", logger.String("product_id", productID), logger.Error(jerr))
	}
}

func failureOf(productID, url string, err error, at time.Time) domain.SweepFailure {
	stage := StageFailed
	if s, ok := stageOf(err); ok {
		stage = s
	}
	reason := err.Error()
	var se *StageError
	if errors.As(err, &se) {
		reason = se.Err.Error()
	}
	return domain.SweepFailure{
		ProductID: productID,
		URL:       url,
		Stage:     string(stage),
		Reason:    reason,
		At:        at,
	}
}
