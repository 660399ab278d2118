package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/mw"
)

func init() { Register(registerProviders) }

func registerProviders(r chi.Router, d deps.Deps) {
	r.Route("/api/providers", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger), mw.RequireOwner)

		r.With(middleware.Timeout(d.RequestTimeout)).Group(func(r chi.Router) {
			r.Get("/available", handlers.AvailableProviders(d))
			r.Get("/config", handlers.GetProviderConfig(d))
			r.Post("/config", handlers.SaveProviderConfig(d))
		})

		r.With(middleware.Timeout(d.ProviderTimeout)).Group(func(r chi.Router) {
			r.Get("/{name}/models", handlers.ProviderModels(d))
			r.Post("/test", handlers.CheckProvider(d))
		})
	})
}
