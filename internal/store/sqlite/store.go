// Package sqlite is the default Store backend: a single file database
// accessed through sqlx and the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type Options struct {
	// Location converts stored UTC times on read. Defaults to time.Local.
	Location *time.Location
	Logger   logger.Logger
}

type Store struct {
	db  *sqlx.DB
	loc *time.Location
	log logger.Logger
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn (a file path, "file:" URI or ":memory:") and applies the schema.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	db, err := sqlx.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; also keeps a ":memory:" database alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	opts.Logger.Info("sqlite store ready", logger.String("dsn", dsn))

	return &Store{db: db, loc: opts.Location, log: opts.Logger, now: time.Now}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the handle for tests and maintenance tooling.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+productColumns+` FROM products ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("sqlite: list products: %w", err)
	}
	return s.toProducts(rows)
}

func (s *Store) toProducts(rows []productRow) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		p, err := s.toProduct(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (s *Store) FindProduct(ctx context.Context, ownerID, url string) (*domain.Product, error) {
	return s.getProduct(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE owner_id = ? AND url = ?`, ownerID, url)
}

func (s *Store) getProduct(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.Product, error) {
	var row productRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get product: %w", err)
	}
	p, err := s.toProduct(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ApplyRefresh(ctx context.Context, r domain.Refresh) (*domain.Product, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite: apply refresh: %w", err)
	}

	checked := formatTime(r.CheckedAt)
	var product *domain.Product

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		id := r.ProductID

		if id != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE products
				   SET title = ?, domain = COALESCE(?, domain), stock_status = ?, last_checked = ?
				 WHERE id = ?`,
				r.Title, nullString(r.Domain), string(r.StockStatus), checked, id)
			if err != nil {
				return fmt.Errorf("update product: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return store.ErrNotFound
			}
		} else {
			err := tx.GetContext(ctx, &id, `
				INSERT INTO products(id, owner_id, url, title, domain, stock_status, last_checked, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(owner_id, url) DO UPDATE SET
				  title        = excluded.title,
				  domain       = COALESCE(excluded.domain, products.domain),
				  stock_status = excluded.stock_status,
				  last_checked = excluded.last_checked
				RETURNING id`,
				uuid.NewString(), r.OwnerID, r.URL, r.Title, nullString(r.Domain),
				string(r.StockStatus), checked, checked)
			if err != nil {
				return fmt.Errorf("upsert product: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO price_observations(`+observationColumns+`)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), id, r.Price, r.Currency, checked); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}

		p, err := s.getProduct(ctx, tx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
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
		return nil, fmt.Errorf("sqlite: apply refresh: %w", err)
	}

	return product, nil
}

func (s *Store) ListObservations(ctx context.Context, productID string) ([]domain.PriceObservation, error) {
	var rows []observationRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+observationColumns+` FROM price_observations
		 WHERE product_id = ?
		 ORDER BY observed_at, rowid`, productID); err != nil {
		return nil, fmt.Errorf("sqlite: list observations: %w", err)
	}
	return s.toObservations(rows)
}

func (s *Store) toObservations(rows []observationRow) ([]domain.PriceObservation, error) {
	out := make([]domain.PriceObservation, 0, len(rows))
	for _, r := range rows {
		o, err := s.toObservation(r)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) ListTracked(ctx context.Context, ownerID string) ([]domain.TrackedProduct, error) {
	var prows []productRow
	if err := s.db.SelectContext(ctx, &prows, `
		SELECT `+productColumns+` FROM products
		 WHERE owner_id = ?
		 ORDER BY created_at, id`, ownerID); err != nil {
		return nil, fmt.Errorf("sqlite: list tracked: %w", err)
	}
	products, err := s.toProducts(prows)
	if err != nil {
		return nil, err
	}

	var orows []observationRow
	if err := s.db.SelectContext(ctx, &orows, `
		SELECT o.id, o.product_id, o.price, o.currency, o.observed_at
		  FROM price_observations o
		  JOIN products p ON p.id = o.product_id
		 WHERE p.owner_id = ?
		 ORDER BY o.observed_at, o.rowid`, ownerID); err != nil {
		return nil, fmt.Errorf("sqlite: list tracked observations: %w", err)
	}
	obs, err := s.toObservations(orows)
	if err != nil {
		return nil, err
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
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM products WHERE id = ? AND owner_id = ?`, productID, ownerID); err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM price_observations WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("delete observations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("sqlite: delete product: %w", err)
	}
	return err
}

func (s *Store) ActiveProviderConfig(ctx context.Context, ownerID string) (*domain.ProviderConfig, error) {
	var row providerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+providerColumns+` FROM provider_configs
		 WHERE owner_id = ? AND is_active = 1
		 ORDER BY updated_at DESC
		 LIMIT 1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: active provider config: %w", err)
	}

	cfg, err := s.toProviderConfig(row)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) SaveProviderConfig(ctx context.Context, cfg domain.ProviderConfig) (*domain.ProviderConfig, error) {
	now := formatTime(s.now())
	id := uuid.NewString()

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM provider_configs WHERE owner_id = ? AND provider_name = ?`,
			cfg.OwnerID, cfg.ProviderName); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE provider_configs SET is_active = 0, updated_at = ? WHERE owner_id = ? AND is_active = 1`,
			now, cfg.OwnerID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO provider_configs(`+providerColumns+`)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			id, cfg.OwnerID, cfg.ProviderName, cfg.APIKey, cfg.ModelName, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: save provider config: %w", err)
	}

	return s.ActiveProviderConfig(ctx, cfg.OwnerID)
}

func (s *Store) DeleteOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		 WHERE created_at < ?
		   AND NOT EXISTS (SELECT 1 FROM price_observations o WHERE o.product_id = products.id)`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
