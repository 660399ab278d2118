package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

// ConfigSource resolves the active provider config for an owner.
// It returns store.ErrNotFound when the owner has none.
type ConfigSource interface {
	ActiveProviderConfig(ctx context.Context, ownerID string) (*domain.ProviderConfig, error)
}

// Default is the fallback used when an owner has no stored config.
type Default struct {
	Provider string
	APIKey   string
	Model    string
}

// Dispatcher picks a provider per owner and coerces its answer.
type Dispatcher struct {
	registry *Registry
	configs  ConfigSource
	fallback Default
	timeout  time.Duration
	logger   logger.Logger
}

func NewDispatcher(reg *Registry, configs ConfigSource, fallback Default, timeout time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		configs:  configs,
		fallback: fallback,
		timeout:  timeout,
		logger:   log,
	}
}

// Registry exposes the provider table to the management API.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Extract runs one provider call for ownerID. Transport errors are never retried here.
func (d *Dispatcher) Extract(ctx context.Context, text, ownerID string) (Fields, error) {
	name, apiKey, model, err := d.resolve(ctx, ownerID)
	if err != nil {
		return Fields{}, err
	}

	p, err := d.registry.Get(name)
	if err != nil {
		return Fields{}, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := p.Extract(ctx, text, apiKey, model)
	if err != nil {
		return Fields{}, err
	}

	fields, err := ParseFields(raw)
	if err != nil {
		d.logger.Warn("provider returned unusable payload",
			logger.String("provider", name),
			logger.String("model", model),
			logger.Error(err))
		return Fields{}, err
	}

	d.logger.Debug("extraction succeeded",
		logger.String("provider", name),
		logger.String("model", model),
		logger.Int("chars", len(text)),
		logger.Duration("elapsed", time.Since(start)))

	return fields, nil
}

func (d *Dispatcher) resolve(ctx context.Context, ownerID string) (name, apiKey, model string, err error) {
	if d.configs != nil && ownerID != "" {
		cfg, err := d.configs.ActiveProviderConfig(ctx, ownerID)
		switch {
		case err == nil:
			return cfg.ProviderName, cfg.APIKey, cfg.ModelName, nil
		case !errors.Is(err, store.ErrNotFound):
			return "", "", "", fmt.Errorf("load provider config: %w", err)
		}
	}

	if d.fallback.Provider == "" || d.fallback.APIKey == "" {
		return "", "", "", ErrNoProviderConfigured
	}
	return d.fallback.Provider, d.fallback.APIKey, d.fallback.Model, nil
}
