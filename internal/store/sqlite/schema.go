package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS products(
  id           TEXT PRIMARY KEY,
  owner_id     TEXT NOT NULL,
  url          TEXT NOT NULL,
  title        TEXT,
  domain       TEXT,
  stock_status TEXT NOT NULL DEFAULT 'Unknown'
               CHECK (stock_status IN ('In Stock','Out of Stock','Unknown')),
  last_checked TEXT,
  created_at   TEXT NOT NULL,
  UNIQUE(owner_id, url)
);
CREATE INDEX IF NOT EXISTS idx_products_owner ON products(owner_id);

CREATE TABLE IF NOT EXISTS price_observations(
  id          TEXT PRIMARY KEY,
  product_id  TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  price       REAL NOT NULL CHECK (price >= 0),
  currency    TEXT NOT NULL,
  observed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_product ON price_observations(product_id, observed_at);

CREATE TABLE IF NOT EXISTS provider_configs(
  id            TEXT PRIMARY KEY,
  owner_id      TEXT NOT NULL,
  provider_name TEXT NOT NULL,
  api_key       TEXT NOT NULL,
  model_name    TEXT NOT NULL,
  is_active     INTEGER NOT NULL DEFAULT 1,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL,
  UNIQUE(owner_id, provider_name)
);
CREATE INDEX IF NOT EXISTS idx_provider_configs_active ON provider_configs(owner_id, is_active);
`
