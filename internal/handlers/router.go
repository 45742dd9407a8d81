package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/donabox/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second
)

// RouteRegistrar adds one group's routes.
type RouteRegistrar func(r chi.Router)

type middlewareChain []func(http.Handler) http.Handler

func (c middlewareChain) apply(r chi.Router) {
	for _, mw := range c {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// routeGroup is a mounted path under /api/v1. Without routes it answers 501.
type routeGroup struct {
	routes      RouteRegistrar
	middlewares middlewareChain
}

type routerConfig struct {
	middlewares middlewareChain
	health      *HealthHandlers
	public      routeGroup
	admin       routeGroup
}

// Option customises NewRouter.
type Option func(*routerConfig)

// WithMiddlewares appends router-wide middleware after request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithPublicRoutes mounts the shopper routes at /api/v1/public.
func WithPublicRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.public.routes = reg }
}

func WithPublicMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.public.middlewares = append(cfg.public.middlewares, mw...) }
}

// WithAdminRoutes mounts the staff routes at /api/v1/admin.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin.routes = reg }
}

func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.admin.middlewares = append(cfg.admin.middlewares, mw...) }
}

// NewRouter serves the probes at the root and the public and admin groups under
// /api/v1. Unknown paths get a JSON 404.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: middlewareChain{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	cfg.middlewares.apply(r)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "method_not_allowed", fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed)
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		for path, group := range map[string]routeGroup{"/public": cfg.public, "/admin": cfg.admin} {
			api.Route(path, func(g chi.Router) {
				group.middlewares.apply(g)
				if group.routes == nil {
					notImplemented(g, path[1:])
					return
				}
				group.routes(g)
			})
		}
	})
	return r
}

func writeRouteError(w http.ResponseWriter, r *http.Request, code, msg string, status int) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, msg, status))
}

func notImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		writeRouteError(w, req, "not_implemented", name+" routes are not available", http.StatusNotImplemented)
	}
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
