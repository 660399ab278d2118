// Package postgres is the server Store backend on pgx/v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS products(
  id           TEXT PRIMARY KEY,
  owner_id     TEXT NOT NULL,
  url          TEXT NOT NULL,
  title        TEXT,
  domain       TEXT,
  stock_status TEXT NOT NULL DEFAULT 'Unknown'
               CHECK (stock_status IN ('In Stock','Out of Stock','Unknown')),
  last_checked TIMESTAMPTZ,
  created_at   TIMESTAMPTZ NOT NULL,
  UNIQUE(owner_id, url)
);
CREATE INDEX IF NOT EXISTS idx_products_owner ON products(owner_id);

CREATE TABLE IF NOT EXISTS price_observations(
  id          TEXT PRIMARY KEY,
  seq         BIGINT GENERATED ALWAYS AS IDENTITY,
  product_id  TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  price       DOUBLE PRECISION NOT NULL CHECK (price >= 0),
  currency    TEXT NOT NULL,
  observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_product ON price_observations(product_id, observed_at);

CREATE TABLE IF NOT EXISTS provider_configs(
  id            TEXT PRIMARY KEY,
  owner_id      TEXT NOT NULL,
  provider_name TEXT NOT NULL,
  api_key       TEXT NOT NULL,
  model_name    TEXT NOT NULL,
  is_active     BOOLEAN NOT NULL DEFAULT TRUE,
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL,
  UNIQUE(owner_id, provider_name)
);
`

const (
	productColumns     = `id, owner_id, url, title, domain, stock_status, last_checked, created_at`
	observationColumns = `id, product_id, price, currency, observed_at`
	providerColumns    = `id, owner_id, provider_name, api_key, model_name, is_active, created_at, updated_at`
)

type Options struct {
	Location *time.Location
	MaxConns int32
	Logger   logger.Logger
}

type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
	log  logger.Logger
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to a postgres:// DSN and applies the schema.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 4
	}
	cfg.MaxConns = opts.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	opts.Logger.Info("postgres store ready",
		logger.String("host", cfg.ConnConfig.Host),
		logger.String("database", cfg.ConnConfig.Database))

	return &Store{pool: pool, loc: opts.Location, log: opts.Logger, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) runInTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p           domain.Product
		status      string
		lastChecked *time.Time
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.URL, &p.Title, &p.Domain, &status, &lastChecked, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	p.StockStatus = domain.StockStatus(status)
	p.CreatedAt = p.CreatedAt.In(s.loc)
	if lastChecked != nil {
		lc := lastChecked.In(s.loc)
		p.LastChecked = &lc
	}
	return p, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	out, err := s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) getProduct(ctx context.Context, q querier, query string, args ...any) (*domain.Product, error) {
	p, err := s.scanProduct(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get product: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, s.pool, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *Store) FindProduct(ctx context.Context, ownerID, url string) (*domain.Product, error) {
	return s.getProduct(ctx, s.pool, `SELECT `+productColumns+` FROM products WHERE owner_id = $1 AND url = $2`, ownerID, url)
}

func (s *Store) ApplyRefresh(ctx context.Context, r domain.Refresh) (*domain.Product, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("postgres: apply refresh: %w", err)
	}

	checked := r.CheckedAt.UTC()
	var product *domain.Product

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		id := r.ProductID

		if id != "" {
			tag, err := tx.Exec(ctx, `
				UPDATE products
				   SET title = $1, domain = COALESCE($2, domain), stock_status = $3, last_checked = $4
				 WHERE id = $5`,
				r.Title, r.Domain, string(r.StockStatus), checked, id)
			if err != nil {
				return fmt.Errorf("update product: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return store.ErrNotFound
			}
		} else {
			err := tx.QueryRow(ctx, `
				INSERT INTO products(id, owner_id, url, title, domain, stock_status, last_checked, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
				ON CONFLICT (owner_id, url) DO UPDATE SET
				  title        = EXCLUDED.title,
				  domain       = COALESCE(EXCLUDED.domain, products.domain),
				  stock_status = EXCLUDED.stock_status,
				  last_checked = EXCLUDED.last_checked
				RETURNING id`,
				uuid.NewString(), r.OwnerID, r.URL, r.Title, r.Domain, string(r.StockStatus), checked).Scan(&id)
			if err != nil {
				return fmt.Errorf("upsert product: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO price_observations(`+observationColumns+`)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), id, r.Price, r.Currency, checked); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}

		p, err := s.getProduct(ctx, tx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: apply refresh: %w", err)
	}
	return product, nil
}

func (s *Store) queryObservations(ctx context.Context, query string, args ...any) ([]domain.PriceObservation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Price, &o.Currency, &o.ObservedAt); err != nil {
			return nil, err
		}
		o.ObservedAt = o.ObservedAt.In(s.loc)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListObservations(ctx context.Context, productID string) ([]domain.PriceObservation, error) {
	out, err := s.queryObservations(ctx, `
		SELECT `+observationColumns+` FROM price_observations
		 WHERE product_id = $1
		 ORDER BY observed_at, seq`, productID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list observations: %w", err)
	}
	return out, nil
}

func (s *Store) ListTracked(ctx context.Context, ownerID string) ([]domain.TrackedProduct, error) {
	products, err := s.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		 WHERE owner_id = $1
		 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked: %w", err)
	}

	obs, err := s.queryObservations(ctx, `
		SELECT o.id, o.product_id, o.price, o.currency, o.observed_at
		  FROM price_observations o
		  JOIN products p ON p.id = o.product_id
		 WHERE p.owner_id = $1
		 ORDER BY o.observed_at, o.seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked observations: %w", err)
	}

	byProduct := make(map[string][]domain.PriceObservation, len(products))
	for _, o := range obs {
		byProduct[o.ProductID] = append(byProduct[o.ProductID], o)
	}
	return store.BuildTracked(products, byProduct)
}

func (s *Store) GetTracked(ctx context.Context, productID string) (*domain.TrackedProduct, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	obs, err := s.ListObservations(ctx, productID)
	if err != nil {
		return nil, err
	}
	view, err := domain.BuildTrackedProduct(*p, obs)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID, productID string) error {
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM price_observations WHERE product_id IN
			(SELECT id FROM products WHERE id = $1 AND owner_id = $2)`, productID, ownerID); err != nil {
			return fmt.Errorf("delete observations: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1 AND owner_id = $2`, productID, ownerID)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("postgres: delete product: %w", err)
	}
	return err
}

func (s *Store) scanProviderConfig(row pgx.Row) (*domain.ProviderConfig, error) {
	var c domain.ProviderConfig
	if err := row.Scan(&c.ID, &c.OwnerID, &c.ProviderName, &c.APIKey, &c.ModelName, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.In(s.loc)
	c.UpdatedAt = c.UpdatedAt.In(s.loc)
	return &c, nil
}

func (s *Store) ActiveProviderConfig(ctx context.Context, ownerID string) (*domain.ProviderConfig, error) {
	c, err := s.scanProviderConfig(s.pool.QueryRow(ctx, `
		SELECT `+providerColumns+` FROM provider_configs
		 WHERE owner_id = $1 AND is_active
		 ORDER BY updated_at DESC
		 LIMIT 1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: active provider config: %w", err)
	}
	return c, nil
}

func (s *Store) SaveProviderConfig(ctx context.Context, cfg domain.ProviderConfig) (*domain.ProviderConfig, error) {
	now := s.now().UTC()
	var saved *domain.ProviderConfig

	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM provider_configs WHERE owner_id = $1 AND provider_name = $2`,
			cfg.OwnerID, cfg.ProviderName); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE provider_configs SET is_active = FALSE, updated_at = $1 WHERE owner_id = $2 AND is_active`,
			now, cfg.OwnerID); err != nil {
			return err
		}
		c, err := s.scanProviderConfig(tx.QueryRow(ctx, `
			INSERT INTO provider_configs(`+providerColumns+`)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
			RETURNING `+providerColumns,
			uuid.NewString(), cfg.OwnerID, cfg.ProviderName, cfg.APIKey, cfg.ModelName, now))
		if err != nil {
			return err
		}
		saved = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: save provider config: %w", err)
	}
	return saved, nil
}

func (s *Store) DeleteOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM products p
		 WHERE p.created_at < $1
		   AND NOT EXISTS (SELECT 1 FROM price_observations o WHERE o.product_id = p.id)`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orphans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
