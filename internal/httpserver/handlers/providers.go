package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type providersResponse struct {
	Providers []string `json:"providers"`
	Default   string   `json:"default"`
}

type providerConfigRequest struct {
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	ModelName    string `json:"model_name"`
}

type providerConfigResponse struct {
	ID           string    `json:"id"`
	ProviderName string    `json:"provider_name"`
	ModelName    string    `json:"model_name"`
	Active       bool      `json:"is_active"`
	APIKeyMasked string    `json:"api_key_masked"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type modelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

type testResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func configView(c *domain.ProviderConfig) providerConfigResponse {
	return providerConfigResponse{
		ID:           c.ID,
		ProviderName: c.ProviderName,
		ModelName:    c.ModelName,
		Active:       c.Active,
		APIKeyMasked: c.MaskedKey(),
		UpdatedAt:    c.UpdatedAt,
	}
}

func (req *providerConfigRequest) trim() {
	req.ProviderName = strings.ToLower(strings.TrimSpace(req.ProviderName))
	req.APIKey = strings.TrimSpace(req.APIKey)
	req.ModelName = strings.TrimSpace(req.ModelName)
}

func AvailableProviders(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, providersResponse{
			Providers: d.Providers.Names(),
			Default:   d.DefaultProvider,
		})
	}
}

// GetProviderConfig returns the caller's active configuration with the key masked.
func GetProviderConfig(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := d.Store.ActiveProviderConfig(r.Context(), mw.OwnerFrom(r.Context()))
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "no provider configured")
		case err != nil:
			d.Logger.Error("load provider config failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load provider config")
		default:
			writeJSON(w, http.StatusOK, configView(cfg))
		}
	}
}

// SaveProviderConfig replaces the caller's config for that provider and activates it.
func SaveProviderConfig(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerConfigRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.trim()
		if req.APIKey == "" || req.ModelName == "" {
			writeError(w, http.StatusBadRequest, "api_key and model_name are required")
			return
		}
		if _, err := d.Providers.Get(req.ProviderName); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		owner := mw.OwnerFrom(r.Context())
		saved, err := d.Store.SaveProviderConfig(r.Context(), domain.ProviderConfig{
			OwnerID:      owner,
			ProviderName: req.ProviderName,
			APIKey:       req.APIKey,
			ModelName:    req.ModelName,
		})
		if err != nil {
			d.Logger.Error("save provider config failed", logger.String("owner", owner), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save provider config")
			return
		}

		d.Logger.Info("provider config saved",
			logger.String("owner", owner),
			logger.String("provider", saved.ProviderName),
			logger.String("model", saved.ModelName))
		writeJSON(w, http.StatusOK, configView(saved))
	}
}

// ProviderModels lists the models a credential can use. Without an api_key
// query parameter the caller's stored key for that provider is used.
func ProviderModels(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.ToLower(chi.URLParam(r, "name"))
		p, err := d.Providers.Get(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		key := strings.TrimSpace(r.URL.Query().Get("api_key"))
		if key == "" {
			cfg, err := d.Store.ActiveProviderConfig(r.Context(), mw.OwnerFrom(r.Context()))
			if err == nil && cfg.ProviderName == name {
				key = cfg.APIKey
			}
		}
		if key == "" {
			writeError(w, http.StatusBadRequest, "api_key is required")
			return
		}

		models, err := p.ListModels(r.Context(), key)
		if err != nil {
			d.Logger.Warn("list models failed", logger.String("provider", name), logger.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if models == nil {
			models = []string{}
		}
		writeJSON(w, http.StatusOK, modelsResponse{Provider: name, Models: models})
	}
}

// CheckProvider performs a minimal call with the given credential. Provider
// failures are reported in the body, not the status code.
func CheckProvider(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerConfigRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.trim()
		if req.APIKey == "" || req.ModelName == "" {
			writeError(w, http.StatusBadRequest, "api_key and model_name are required")
			return
		}
		p, err := d.Providers.Get(req.ProviderName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := p.TestConnection(r.Context(), req.APIKey, req.ModelName); err != nil {
			writeJSON(w, http.StatusOK, testResponse{Status: "error", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, testResponse{
			Status:  "success",
			Message: "connected to " + p.Name() + " with model " + req.ModelName,
		})
	}
}
