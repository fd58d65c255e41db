package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/industrialcatalog/catalog-server/internal/config"
	"github.com/industrialcatalog/catalog-server/internal/handler"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/middleware"
)

type routerDeps struct {
	cfg     *config.Config
	metrics *metrics.Registry
	auth    *handler.AuthHandler
	health  http.Handler
	ipLimit func(http.Handler) http.Handler
}

func newRouter(d routerDeps) chi.Router {
	isProduction := d.cfg.IsProduction()
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(d.metrics.Middleware)
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", d.health.ServeHTTP)
	if d.cfg.MetricsEnabled() {
		if d.cfg.MetricsToken != "" {
			r.With(middleware.NewMetricsAuthMiddleware(d.cfg.MetricsToken).Handler).Handle("/metrics", d.metrics.Handler())
		} else {
			r.Handle("/metrics", d.metrics.Handler())
		}
	}

	r.Route("/api/admin/auth", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(d.ipLimit)
		r.Mount("/", d.auth.Routes())
	})

	if d.cfg.StaticDir != "" {
		r.Group(func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Handle("/*", handler.NewSPAHandler(d.cfg.StaticDir))
		})
	}

	return r
}
