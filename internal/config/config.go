package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 10s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Persistence
	DatabaseDSN string         // sqlite file path, "file:..." DSN, or postgres:// URL
	Timezone    string         // IANA name or "Local"
	Location    *time.Location // resolved once from Timezone

	// Refresh pipeline
	RefreshInterval     time.Duration // sweep interval (default: 6h)
	StartupDelay        time.Duration // first sweep after start (default: 5s)
	RefreshWorkers      int           // concurrent items per sweep (default: 1 = sequential)
	RenderTimeout       time.Duration // hard timeout per render (default: 30s)
	RenderMode          string        // "chrome" | "http"
	ChromePath          string        // optional chrome/chromium binary path
	MaxConcurrentRender int           // process-wide cap on simultaneous renders (default: 2)
	MaxContentChars     int           // normalizer budget (default: 15000)

	// Extraction
	DefaultProvider string        // provider used when an owner has no config (default: gemini)
	DefaultAPIKey   string        // credential for the default provider (GOOGLE_API_KEY)
	DefaultModel    string        // model for the default provider
	ProviderTimeout time.Duration // HTTP timeout for provider calls

	// Maintenance
	OrphanGCInterval  time.Duration // interval for removing products without observations
	OrphanGCThreshold time.Duration // minimum age before an orphan is removed
	WatchlistFile     string        // optional YAML watchlist imported at startup
	WatchlistOwner    string        // owner used for watchlist entries without one

	// Redis (optional, empty address disables the sweep journal)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisWarnThreshold  int           // warn after this many attempts

	// Access restrictions
	AllowedHosts    []string // optional, restrict API access to specific Host headers
	AllowedCIDRS    []string // optional, restrict health endpoints to specific IPs
	TrustProxy      bool     // true => trust X-Forwarded-For headers
	FetchBurst      int      // on-demand fetch rate limit burst per owner
	FetchRefillPerM int      // on-demand fetch tokens refilled per owner per minute
}

func Load() *Config {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PRICEWATCH_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("PRICEWATCH_SHUTDOWN_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel:  getenv("PRICEWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PRICEWATCH_PRETTY_LOG", true),

		// Persistence
		DatabaseDSN: getenv("PRICEWATCH_DATABASE_DSN", "./pricewatch.db"),
		Timezone:    getenv("PRICEWATCH_TIMEZONE", "Local"),

		// Refresh pipeline
		RefreshInterval:     mustDuration("PRICEWATCH_REFRESH_INTERVAL", 6*time.Hour),
		StartupDelay:        mustDuration("PRICEWATCH_STARTUP_DELAY", 5*time.Second),
		RefreshWorkers:      getenvInt("PRICEWATCH_REFRESH_WORKERS", 1),
		RenderTimeout:       mustDuration("PRICEWATCH_RENDER_TIMEOUT", 30*time.Second),
		RenderMode:          strings.ToLower(getenv("PRICEWATCH_RENDER_MODE", "chrome")),
		ChromePath:          getenv("PRICEWATCH_CHROME_PATH", ""),
		MaxConcurrentRender: getenvInt("PRICEWATCH_MAX_CONCURRENT_RENDERS", 2),
		MaxContentChars:     getenvInt("SCRAPER_MAX_CHARS", 15000),

		// Extraction
		DefaultProvider: strings.ToLower(getenv("PRICEWATCH_DEFAULT_PROVIDER", "gemini")),
		DefaultAPIKey:   getenv("GOOGLE_API_KEY", ""),
		DefaultModel:    getenv("GEMINI_MODEL_NAME", "gemini-2.5-flash"),
		ProviderTimeout: mustDuration("PRICEWATCH_PROVIDER_TIMEOUT", 30*time.Second),

		// Maintenance
		OrphanGCInterval:  mustDuration("PRICEWATCH_ORPHAN_GC_INTERVAL", 24*time.Hour),
		OrphanGCThreshold: mustDuration("PRICEWATCH_ORPHAN_GC_THRESHOLD", 24*time.Hour),
		WatchlistFile:     getenv("PRICEWATCH_WATCHLIST_FILE", ""),
		WatchlistOwner:    getenv("PRICEWATCH_WATCHLIST_OWNER", "local"),

		// Redis settings
		RedisAddr:           getenv("PRICEWATCH_REDIS_ADDR", ""),
		RedisUser:           getenv("PRICEWATCH_REDIS_USERNAME", ""),
		RedisPassword:       getenv("PRICEWATCH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("PRICEWATCH_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:    splitAndTrim(getenv("PRICEWATCH_ALLOWED_HOSTS", "")),
		AllowedCIDRS:    parseAllowedIPs(getenv("PRICEWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:      mustBool("PRICEWATCH_TRUST_PROXY", false),
		FetchBurst:      getenvInt("PRICEWATCH_FETCH_BURST", 5),
		FetchRefillPerM: getenvInt("PRICEWATCH_FETCH_REFILL_PER_MIN", 10),
	}

	loc, err := resolveLocation(cfg.Timezone)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid PRICEWATCH_TIMEZONE %q: %v", cfg.Timezone, err))
	}
	cfg.Location = loc

	if cfg.RenderMode != "chrome" && cfg.RenderMode != "http" {
		panic(fmt.Sprintf("❌ FATAL: PRICEWATCH_RENDER_MODE must be chrome or http, got %q", cfg.RenderMode))
	}
	if cfg.RefreshWorkers < 1 {
		cfg.RefreshWorkers = 1
	}
	if cfg.MaxConcurrentRender < 1 {
		cfg.MaxConcurrentRender = 1
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.DefaultAPIKey != "" {
			cfgCopy.DefaultAPIKey = "***REDACTED***"
		}
		cfgCopy.DatabaseDSN = redactDSN(cfg.DatabaseDSN)
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// resolveLocation loads the process timezone once; "Local" and "" map to time.Local.
func resolveLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// redactDSN hides the password of URL-style DSNs.
// Examples: "postgres://u:secret@db:5432/pw" -> "postgres://u:***@db:5432/pw"
//
//	"./pricewatch.db" -> "./pricewatch.db"
func redactDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme == -1 || at == -1 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i != -1 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
