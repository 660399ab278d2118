package scheduler

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/refresh"
	"github.com/MrSnakeDoc/pricewatch/internal/sources/watchlist"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type Registrar interface {
	FetchAndRegister(ctx context.Context, url, ownerID string) (*refresh.Registration, error)
}

type ProductFinder interface {
	FindProduct(ctx context.Context, ownerID, url string) (*domain.Product, error)
}

// ImportResult counts what one watchlist import did.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// WatchlistImporter registers watchlist URLs that are not tracked yet.
type WatchlistImporter struct {
	loader    *watchlist.Loader
	finder    ProductFinder
	registrar Registrar
	logger    logger.Logger
}

func NewWatchlistImporter(loader *watchlist.Loader, finder ProductFinder, registrar Registrar, log logger.Logger) *WatchlistImporter {
	return &WatchlistImporter{loader: loader, finder: finder, registrar: registrar, logger: log}
}

// Import runs once. Per-entry failures are logged and skipped.
func (wi *WatchlistImporter) Import(ctx context.Context) (ImportResult, error) {
	var res ImportResult

	entries, err := wi.loader.Load()
	if err != nil {
		return res, err
	}

	wi.logger.Info("importing watchlist", logger.Int("entries", len(entries)))

	for _, e := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		url, err := domain.NormalizeURL(e.URL)
		if err != nil {
			wi.logger.Warn("skipping invalid watchlist url", logger.String("url", e.URL), logger.Error(err))
			res.Failed++
			continue
		}

		_, err = wi.finder.FindProduct(ctx, e.Owner, url)
		switch {
		case err == nil:
			res.Skipped++
			continue
		case !errors.Is(err, store.ErrNotFound):
			wi.logger.Warn("watchlist lookup failed", logger.String("url", url), logger.Error(err))
			res.Failed++
			continue
		}

		if _, err := wi.registrar.FetchAndRegister(ctx, url, e.Owner); err != nil {
			wi.logger.Warn("watchlist registration failed",
				logger.String("url", url),
				logger.String("owner_id", e.Owner),
				logger.Error(err))
			res.Failed++
			continue
		}
		res.Imported++
	}

	wi.logger.Info("watchlist imported",
		logger.Int("imported", res.Imported),
		logger.Int("skipped", res.Skipped),
		logger.Int("failed", res.Failed))

	return res, nil
}
