package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/config"
	pfirestore "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/firestore"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/jobs"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/observability"
	platformstorage "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/storage"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
	firestoreRepo "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories/firestore"
	postgresRepo "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories/postgres"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders         services.OrderService
	Payments       services.PaymentService
	Reconciliation services.ReconciliationService
	Checkout       services.CheckoutService
}

// Container wires repositories, gateways, services and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Gateways     *payments.Manager
	Services     Services

	closers []func(context.Context) error
}

// Option customises NewContainer.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	gateways *payments.Manager
	events   services.EventPublisher
	archive  services.WebhookArchive
	clock    func() time.Time
	closers  []func(context.Context) error
}

// WithLogger sets the base logger used for service events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithGateways overrides gateway construction from config.
func WithGateways(m *payments.Manager) Option {
	return func(o *containerOptions) { o.gateways = m }
}

// WithEventPublisher publishes checkout events after commit.
func WithEventPublisher(p services.EventPublisher) Option {
	return func(o *containerOptions) { o.events = p }
}

// WithWebhookArchive stores raw webhook payloads.
func WithWebhookArchive(a services.WebhookArchive) Option {
	return func(o *containerOptions) { o.archive = a }
}

func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// WithCloser registers a shutdown hook run by Close in reverse order.
func WithCloser(fn func(context.Context) error) Option {
	return func(o *containerOptions) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// NewContainer constructs the runtime dependencies around an opened registry. Tests can supply
// in-memory registries and stub gateways.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	logEvent := observability.EventLogger(options.logger.Named("checkout"))

	gateways := options.gateways
	if gateways == nil {
		var err error
		gateways, err = BuildGateways(cfg, logEvent)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(reg, gateways, cfg, options, logEvent)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Gateways:     gateways,
		Services:     svc,
		closers:      options.closers,
	}, nil
}

// Close releases the registry and any registered hooks.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HealthChecks returns readiness probes for the store.
func (c *Container) HealthChecks() []repositories.DependencyCheck {
	reg := c.Repositories
	return []repositories.DependencyCheck{{
		Name:    "store",
		Timeout: 1500 * time.Millisecond,
		Check:   reg.Ping,
	}}
}

func buildServices(reg repositories.Registry, gateways *payments.Manager, cfg config.Config, opts containerOptions, logEvent func(context.Context, string, map[string]any)) (Services, error) {
	calculator, err := services.NewPriceCalculator(services.PriceCalculatorConfig{
		FreeShippingThresholdCents: cfg.Pricing.FreeShippingThresholdCents,
		ShippingCostCents:          cfg.Pricing.ShippingCostCents,
		TaxRate:                    cfg.Pricing.TaxRate,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init price calculator: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Products:        reg.Products(),
		Customers:       reg.Customers(),
		Deliveries:      reg.Deliveries(),
		Orders:          reg.Orders(),
		Transactions:    reg.Transactions(),
		UnitOfWork:      reg,
		Calculator:      calculator,
		Currency:        cfg.Checkout.Currency,
		AmountTolerance: cfg.Checkout.AmountToleranceCents,
		Clock:           opts.clock,
		Events:          opts.events,
		Logger:          logEvent,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init order service: %w", err)
	}

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Products:     reg.Products(),
		Customers:    reg.Customers(),
		Deliveries:   reg.Deliveries(),
		Orders:       reg.Orders(),
		Transactions: reg.Transactions(),
		UnitOfWork:   reg,
		Gateways:     gateways,
		Clock:        opts.clock,
		Events:       opts.events,
		Logger:       logEvent,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init payment service: %w", err)
	}

	reconciliation, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Products:        reg.Products(),
		Deliveries:      reg.Deliveries(),
		Orders:          reg.Orders(),
		Transactions:    reg.Transactions(),
		UnitOfWork:      reg,
		Gateways:        gateways,
		Archive:         opts.archive,
		PollAttempts:    cfg.Reconcile.PollAttempts,
		PollDelay:       cfg.Reconcile.PollDelay,
		MaxPollAttempts: cfg.Reconcile.MaxPollAttempts,
		SweepAge:        cfg.Reconcile.SweepAge,
		SweepLimit:      cfg.Reconcile.SweepLimit,
		Clock:           opts.clock,
		Events:          opts.events,
		Logger:          logEvent,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init reconciliation service: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:   orders,
		Payments: paymentSvc,
		Clock:    opts.clock,
		Logger:   logEvent,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init checkout service: %w", err)
	}

	return Services{
		Orders:         orders,
		Payments:       paymentSvc,
		Reconciliation: reconciliation,
		Checkout:       checkout,
	}, nil
}

// BuildGateways registers Wompi when its public key is configured and Stripe when an API key
// is present. cfg.Gateway.Provider selects the default.
func BuildGateways(cfg config.Config, logEvent payments.GatewayLogger) (*payments.Manager, error) {
	var gateways []payments.Gateway
	if cfg.Gateway.Provider == "wompi" || strings.TrimSpace(cfg.Gateway.PublicKey) != "" {
		wompi, err := payments.NewWompiGateway(payments.WompiConfig{
			BaseURL:         cfg.Gateway.BaseURL,
			PublicKey:       cfg.Gateway.PublicKey,
			PrivateKey:      cfg.Gateway.PrivateKey,
			IntegritySecret: cfg.Gateway.IntegritySecret,
			WebhookSecret:   cfg.Gateway.WebhookSecret,
			Timeout:         cfg.Gateway.Timeout,
			Logger:          logEvent,
		})
		if err != nil {
			return nil, fmt.Errorf("init wompi gateway: %w", err)
		}
		gateways = append(gateways, wompi)
	}
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey:          cfg.Stripe.APIKey,
			WebhookSecret:   cfg.Stripe.WebhookSecret,
			IntegritySecret: cfg.Stripe.IntegritySecret,
			Logger:          logEvent,
		})
		if err != nil {
			return nil, fmt.Errorf("init stripe gateway: %w", err)
		}
		gateways = append(gateways, stripeGateway)
	}
	return payments.NewManager(cfg.Gateway.Provider, gateways...)
}

// OpenRegistry connects the configured persistence backend.
func OpenRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Storage.Backend {
	case config.StoreBackendPostgres:
		reg, err := postgresRepo.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return reg, nil
	case config.StoreBackendFirestore, "":
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("init firestore client: %w", err)
		}
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, err
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Storage.Backend)
	}
}

// OpenEventPublisher connects to the payments topic. It returns nil when no topic is configured.
func OpenEventPublisher(ctx context.Context, cfg config.PubSubConfig) (*jobs.PubSubEventPublisher, func(context.Context) error, error) {
	if strings.TrimSpace(cfg.PaymentsTopic) == "" {
		return nil, nil, nil
	}
	var clientOpts []option.ClientOption
	if cfg.EmulatorHost != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(cfg.EmulatorHost),
			option.WithoutAuthentication(),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.PaymentsTopic))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closer := func(context.Context) error {
		publisher.Stop()
		return client.Close()
	}
	return publisher, closer, nil
}

// OpenWebhookArchive connects to the archive bucket. It returns nil when no bucket is configured.
func OpenWebhookArchive(ctx context.Context, cfg config.StorageConfig) (*platformstorage.WebhookArchive, func(context.Context) error, error) {
	if strings.TrimSpace(cfg.WebhookArchiveBucket) == "" {
		return nil, nil, nil
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage client: %w", err)
	}
	archive, err := platformstorage.NewWebhookArchive(client, cfg.WebhookArchiveBucket)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return archive, func(context.Context) error { return client.Close() }, nil
}
