package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
)

func init() { Register(registerProducts) }

func registerProducts(r chi.Router, d deps.Deps) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger), mw.RequireOwner)

		quick := r.With(middleware.Timeout(d.RequestTimeout))
		quick.Get("/", handlers.ListProducts(d))
		quick.Post("/refresh", handlers.RefreshProducts(d))
		quick.Delete("/{id}", handlers.DeleteProduct(d))
		quick.Get("/{id}/failure", handlers.ProductFailure(d))

		r.With(
			mw.RateLimit(mw.RateLimitConfig{
				Burst:           d.FetchBurst,
				RefillPerMinute: d.FetchRefillPerM,
				MaxEntries:      10000,
				TrustProxy:      d.TrustProxy,
			}),
			middleware.Timeout(d.FetchTimeout),
		).Post("/fetch", handlers.FetchProduct(d))
	})
}
