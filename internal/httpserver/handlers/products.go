package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/refresh"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
)

type fetchRequest struct {
	URL string `json:"url"`
}

type refreshResponse struct {
	Status    string `json:"status"`
	Coalesced bool   `json:"coalesced"`
}

// ListProducts returns the caller's tracked views.
func ListProducts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := d.Store.ListTracked(r.Context(), mw.OwnerFrom(r.Context()))
		if err != nil {
			d.Logger.Error("list products failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list products")
			return
		}
		if views == nil {
			views = []domain.TrackedProduct{}
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// FetchProduct renders, extracts and registers one URL for the caller.
func FetchProduct(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fetchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		owner := mw.OwnerFrom(r.Context())
		reg, err := d.Registrar.FetchAndRegister(r.Context(), req.URL, owner)
		if err != nil {
			code, msg := fetchFailure(err)
			var se *refresh.StageError
			if errors.As(err, &se) {
				mw.Annotate(r.Context(), logger.String("stage", string(se.Stage)))
			}
			d.Logger.Warn("fetch failed",
				logger.String("url", req.URL),
				logger.String("owner", owner),
				logger.Int("status", code),
				logger.Error(err))
			writeError(w, code, msg)
			return
		}

		mw.Annotate(r.Context(), logger.String("product_id", reg.Product.ID))
		writeJSON(w, http.StatusOK, reg)
	}
}

// fetchFailure maps a pipeline error to a status code and a client message.
func fetchFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		return http.StatusBadRequest, "invalid url"
	case refresh.IsRenderFailure(err):
		return http.StatusUnprocessableEntity, "could not render page: " + err.Error()
	case refresh.IsExtractionFailure(err):
		return http.StatusBadGateway, "could not extract product: " + err.Error()
	default:
		return http.StatusInternalServerError, "failed to save product"
	}
}

// RefreshProducts asks for a sweep and returns immediately. A pending
// trigger absorbs the request.
func RefreshProducts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := refreshResponse{Status: "accepted"}
		select {
		case d.RefreshTrigger <- struct{}{}:
			d.Logger.Info("manual refresh requested", logger.String("owner", mw.OwnerFrom(r.Context())))
		default:
			resp.Coalesced = true
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// DeleteProduct removes one of the caller's products.
func DeleteProduct(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := d.Store.DeleteProduct(r.Context(), mw.OwnerFrom(r.Context()), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		case err != nil:
			d.Logger.Error("delete product failed", logger.String("product_id", id), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to delete product")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// ProductFailure returns the last refresh failure journaled for one of the
// caller's products. Products owned by someone else look like missing ones.
func ProductFailure(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := d.Store.GetProduct(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
			return
		case err != nil:
			d.Logger.Error("get product failed", logger.String("product_id", id), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load product")
			return
		}
		if p.OwnerID != mw.OwnerFrom(r.Context()) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		if d.Journal == nil {
			writeError(w, http.StatusNotFound, "no failure recorded")
			return
		}

		f, err := d.Journal.LastFailure(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "no failure recorded")
		case err != nil:
			d.Logger.Warn("read failure journal", logger.String("product_id", id), logger.Error(err))
			writeError(w, http.StatusServiceUnavailable, "failure journal unavailable")
		default:
			writeJSON(w, http.StatusOK, f)
		}
	}
}
