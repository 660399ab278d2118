package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/extract"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/refresh"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

// Registrar performs on-demand fetch and registration.
type Registrar interface {
	FetchAndRegister(ctx context.Context, rawURL, ownerID string) (*refresh.Registration, error)
}

// Journal exposes recent sweep reports and per-product failures.
// Nil when Redis is not configured.
type Journal interface {
	LastSweep(ctx context.Context) (*domain.SweepReport, error)
	RecentSweeps(ctx context.Context, n int64) ([]domain.SweepReport, error)
	LastFailure(ctx context.Context, productID string) (*domain.SweepFailure, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedHosts    []string // Host headers allowed to reach the API
	AllowedCIDRS    []string // IPs allowed to reach healthz/readyz/infra
	TrustProxy      bool     // true if running behind a trusted reverse proxy
	FetchBurst      int      // token bucket size for POST /api/products/fetch
	FetchRefillPerM int      // tokens regained per minute

	RequestTimeout  time.Duration // budget for cheap endpoints
	FetchTimeout    time.Duration // budget for render + extraction
	ProviderTimeout time.Duration // budget for provider model listing and tests

	Store           store.Store
	Registrar       Registrar
	Providers       *extract.Registry
	DefaultProvider string
	Journal         Journal       // optional
	RefreshTrigger  chan struct{} // buffered(1), drained by the refresh scheduler
	SweepRunning    func() bool   // optional
}
