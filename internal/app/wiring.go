package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/pricewatch/internal/config"
	"github.com/MrSnakeDoc/pricewatch/internal/extract"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/render"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	"github.com/MrSnakeDoc/pricewatch/internal/store/postgres"
	"github.com/MrSnakeDoc/pricewatch/internal/store/sqlite"
)

func isPostgresDSN(dsn string) bool {
	dsn = strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// openStore picks the backend from the DSN: postgres URLs go to pgx,
// everything else is a sqlite path or DSN.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, string, error) {
	if isPostgresDSN(cfg.DatabaseDSN) {
		s, err := postgres.Open(ctx, cfg.DatabaseDSN, postgres.Options{
			Location: cfg.Location,
			MaxConns: int32(cfg.RefreshWorkers + 4),
			Logger:   log,
		})
		return s, "postgres", err
	}

	s, err := sqlite.Open(ctx, cfg.DatabaseDSN, sqlite.Options{
		Location: cfg.Location,
		Logger:   log,
	})
	return s, "sqlite", err
}

// newRenderer builds the configured renderer behind the process-wide limiter.
func newRenderer(cfg *config.Config, log logger.Logger) *render.Limited {
	var r render.Renderer
	switch cfg.RenderMode {
	case "http":
		r = render.NewHTTPRenderer(&http.Client{}, log)
	default:
		r = render.NewChromeRenderer(cfg.ChromePath, log)
	}
	return render.NewLimited(r, cfg.MaxConcurrentRender)
}

// newRegistry registers every supported inference backend.
func newRegistry(cfg *config.Config, log logger.Logger) *extract.Registry {
	client := &http.Client{Timeout: cfg.ProviderTimeout}
	return extract.NewRegistry(
		extract.NewGemini(extract.GeminiBaseURL, client, log),
		extract.NewOpenAICompatible("groq", extract.GroqBaseURL, client, log),
		extract.NewOpenAICompatible("openai", extract.OpenAIBaseURL, client, log),
	)
}
