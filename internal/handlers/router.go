package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clothmarket/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	auth       RouteRegistrar
	shops      RouteRegistrar
	categories RouteRegistrar
	products   []RouteRegistrar
	orders     RouteRegistrar
	reviews    RouteRegistrar
	admin      RouteRegistrar
	internal   RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the marketplace route groups.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	mount := func(parent chi.Router, path, name string, groupMW []func(http.Handler) http.Handler, registrars ...RouteRegistrar) {
		parent.Route(path, func(group chi.Router) {
			for _, mw := range groupMW {
				if mw != nil {
					group.Use(mw)
				}
			}
			registered := false
			for _, registrar := range registrars {
				if registrar != nil {
					registrar(group)
					registered = true
				}
			}
			if !registered {
				registerNotImplemented(group, name)
			}
		})
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		mount(api, "/auth", "auth", nil, cfg.auth)
		mount(api, "/shops", "shops", nil, cfg.shops)
		mount(api, "/categories", "categories", nil, cfg.categories)
		mount(api, "/products", "products", nil, cfg.products...)
		mount(api, "/orders", "orders", nil, cfg.orders)
		mount(api, "/reviews", "reviews", nil, cfg.reviews)
		mount(api, "/admin", "admin", nil, cfg.admin)
	})
	mount(r, "/internal", "internal", cfg.internalMiddlewares, cfg.internal)

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func WithAuthRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.auth = reg }
}

func WithShopRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.shops = reg }
}

func WithCategoryRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.categories = reg }
}

// WithProductRoutes configures the registrars sharing the /products group.
func WithProductRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.products = append(cfg.products, regs...) }
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

func WithReviewRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.reviews = reg }
}

func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = reg }
}

// WithInternalRoutes configures the registrar responsible for /internal endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal = reg }
}

// WithInternalMiddlewares configures middlewares applied to the /internal group, typically OIDC.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
