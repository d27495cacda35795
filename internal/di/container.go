package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clothmarket/api/internal/platform/config"
	"github.com/clothmarket/api/internal/platform/observability"
	"github.com/clothmarket/api/internal/repositories"
	"github.com/clothmarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Accounts services.AccountService
	Shops    services.ShopService
	Catalog  services.CatalogService
	Orders   services.OrderService
	Reviews  services.ReviewService
	Reports  services.ReportService
	Counters services.CounterService
	System   services.SystemService
}

// Collaborators are the infrastructure adapters built outside the repository registry.
type Collaborators struct {
	Images       services.ImageUploader
	OrderEvents  services.OrderEventPublisher
	ReviewEvents services.ReviewEventPublisher
	Build        services.BuildInfo
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the services over reg. Tests can pass an in-memory registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, collab Collaborators) (Services, error) {
	var svc Services

	clock := collab.Clock
	if clock == nil {
		clock = time.Now
	}
	base := collab.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logFor := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(base.Named(name))
	}
	delivery := services.NewDeliveryRules(cfg.Marketplace.ServiceableCities)

	accountSvc, err := services.NewAccountService(services.AccountServiceDeps{
		Accounts: reg.Accounts(),
		Clock:    clock,
		Logger:   logFor("accounts"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}
	svc.Accounts = accountSvc

	shopSvc, err := services.NewShopService(services.ShopServiceDeps{
		Shops:    reg.Shops(),
		Delivery: delivery,
		Clock:    clock,
		Logger:   logFor("shops"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shop service: %w", err)
	}
	svc.Shops = shopSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Shops:      reg.Shops(),
		UnitOfWork: reg,
		Images:     collab.Images,
		MaxImages:  cfg.Marketplace.MaxProductImages,
		Clock:      clock,
		Logger:     logFor("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	carts, err := services.NewCartValidator(reg.Products(), reg.Shops())
	if err != nil {
		return Services{}, fmt.Errorf("build cart validator: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Products:       reg.Products(),
		Shops:          reg.Shops(),
		Counters:       counterSvc,
		Carts:          carts,
		Delivery:       delivery,
		UnitOfWork:     reg,
		NumberAttempts: cfg.Marketplace.OrderNumberAttempts,
		Clock:          clock,
		Events:         collab.OrderEvents,
		Logger:         logFor("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:    reg.Reviews(),
		Orders:     reg.Orders(),
		Products:   reg.Products(),
		Accounts:   reg.Accounts(),
		UnitOfWork: reg,
		Clock:      clock,
		Events:     collab.ReviewEvents,
		Logger:     logFor("reviews"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	reportSvc, err := services.NewReportService(services.ReportServiceDeps{
		Reports: reg.Reports(),
		Clock:   clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}
	svc.Reports = reportSvc

	// Readiness falls back to liveness when no probes were configured.
	if health := reg.Health(); health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Clock:            clock,
			Build:            collab.Build,
			ReportTTL:        cfg.Server.ReadinessCacheTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
