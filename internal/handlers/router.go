package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	storefront []RouteRegistrar
	webhooks   RouteRegistrar
	admin      RouteRegistrar
	internal   RouteRegistrar

	adminMiddlewares    []func(http.Handler) http.Handler
	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	// polling requests may hold the connection for attempts*delay
	defaultTimeout = 90 * time.Second
)

// NewRouter builds the chi router: probes at the root, everything else under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.middlewares = append(cfg.middlewares, middleware.Timeout(defaultTimeout))
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, registrar := range cfg.storefront {
			if registrar != nil {
				registrar(api)
			}
		}
		mount := func(path string, registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
			if registrar == nil {
				return
			}
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				registrar(group)
			})
		}
		mount("/webhooks", cfg.webhooks, nil)
		mount("/admin", cfg.admin, cfg.adminMiddlewares)
		mount("/internal", cfg.internal, cfg.internalMiddlewares)
	})

	return r
}

// WithMiddlewares appends global middleware, applied after request id and real ip.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithStorefrontRoutes registers public checkout routes directly under /api/v1.
func WithStorefrontRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.storefront = append(cfg.storefront, regs...)
	}
}

// WithWebhookRoutes mounts gateway callbacks under /webhooks. Signatures are checked per provider.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = reg
	}
}

// WithAdminRoutes mounts staff routes under /admin behind mw.
func WithAdminRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin = reg
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

// WithInternalRoutes mounts scheduler routes under /internal behind mw.
func WithInternalRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}
