package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/platform/config"
	"github.com/donabox/api/internal/repositories"
	"github.com/donabox/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders services.OrderService
	Config services.ConfigService
	Admin  services.AdminService
	Export services.ExportService
	System services.SystemService
	Gate   services.AuthorizationGate
}

// Options supplies the optional collaborators that live outside the repository registry.
type Options struct {
	Events   services.OrderEventPublisher
	Uploader services.ExportUploader
	Catalog  domain.Catalog
	Build    services.BuildInfo
	Clock    func() time.Time
	IDGen    func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, opts Options) (Services, error) {
	var svc Services

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Business.Location
	if location == nil {
		location = time.UTC
	}

	svc.Gate = services.NewAllowlistGate(services.AllowlistGateDeps{
		Static:               cfg.Business.AdminEmails,
		Directory:            reg.Admins(),
		RequireVerifiedEmail: true,
	})

	configSvc, err := services.NewConfigService(services.ConfigServiceDeps{
		Config:  reg.Config(),
		Gate:    svc.Gate,
		Catalog: opts.Catalog,
		Clock:   clock,
		Logger:  opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build config service: %w", err)
	}
	svc.Config = configSvc

	var mail repositories.MailOutbox
	if cfg.Mail.Enabled {
		mail = reg.Mail()
	}
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    reg.Orders(),
		Config:    configSvc,
		Gate:      svc.Gate,
		Mail:      mail,
		Events:    opts.Events,
		Catalog:   opts.Catalog,
		Location:  location,
		Clock:     clock,
		IDGen:     opts.IDGen,
		Logger:    opts.Logger,
		MailTempl: cfg.Mail.Template,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	adminSvc, err := services.NewAdminService(svc.Gate)
	if err != nil {
		return Services{}, fmt.Errorf("build admin service: %w", err)
	}
	svc.Admin = adminSvc

	exportSvc, err := services.NewExportService(services.ExportServiceDeps{
		Orders:   orderSvc,
		Uploader: opts.Uploader,
		Bucket:   strings.TrimSpace(cfg.Storage.ExportsBucket),
		Prefix:   cfg.Storage.ExportsPrefix,
		Location: location,
		Clock:    clock,
		IDGen:    opts.IDGen,
		Logger:   opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build export service: %w", err)
	}
	svc.Export = exportSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
