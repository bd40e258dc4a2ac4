package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/di"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/handlers"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/auth"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/config"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/idempotency"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/observability"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/secrets"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
	firestoreRepo "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories/firestore"
)

const idempotencyCollection = "idempotencyKeys"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	reg, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	containerOpts := []di.Option{di.WithLogger(baseLogger)}
	publisher, closePublisher, err := di.OpenEventPublisher(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(publisher), di.WithCloser(closePublisher))
	} else {
		logger.Info("event publishing disabled; no topic configured")
	}
	archive, closeArchive, err := di.OpenWebhookArchive(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialise webhook archive", zap.Error(err))
	}
	if archive != nil {
		containerOpts = append(containerOpts, di.WithWebhookArchive(archive), di.WithCloser(closeArchive))
	}

	container, err := di.NewContainer(ctx, cfg, reg, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	logger.Info("payment gateways registered",
		zap.Strings("gateways", container.Gateways.Names()),
		zap.String("default", container.Gateways.Default().Name()))

	idempotencyStore, err := newIdempotencyStore(ctx, reg)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore, idempotency.Options{
		Header: cfg.Idempotency.Header,
		TTL:    cfg.Idempotency.TTL,
	})

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		idempotency.RunJanitor(janitorCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	probes, err := repositories.NewDependencyHealthRepository(container.HealthChecks(), nil)
	if err != nil {
		logger.Fatal("failed to initialise health probes", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithHealthProbes(probes),
	)

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(svc.Checkout, svc.Orders, handlers.WithIdempotency(idempotencyMiddleware))
	paymentHandlers := handlers.NewPaymentHandlers(svc.Payments, svc.Reconciliation)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Reconciliation,
		handlers.WebhookHeaders{Signature: cfg.Gateway.SignatureHeader, Timestamp: cfg.Gateway.TimestampHeader}, nil)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger.Named("http")),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithStorefrontRoutes(orderHandlers.Routes, paymentHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	}

	if staffMiddleware := buildStaffMiddleware(ctx, logger.Named("auth"), cfg); staffMiddleware != nil {
		opts = append(opts, handlers.WithAdminRoutes(handlers.NewAdminHandlers(svc.Orders).Routes, staffMiddleware))
	}
	internalHandlers := handlers.NewInternalHandlers(svc.Reconciliation)
	if oidcMiddleware, ok := buildOIDCMiddleware(logger.Named("auth"), cfg); ok {
		opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes, oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("checkout api listening", zap.String("store", cfg.Storage.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJanitor()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := secrets.Options{
		ProjectID:    project,
		FallbackFile: lookup("API_SECRET_FALLBACK_FILE"),
		Logger:       logger,
	}
	if credentials := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentials != "" {
		opts.ClientOptions = append(opts.ClientOptions, option.WithCredentialsFile(credentials))
	}
	return secrets.NewResolver(ctx, opts)
}

// requiredSecretNames lists secrets the selected gateway cannot run without.
func requiredSecretNames(env map[string]string) []string {
	provider := strings.ToLower(strings.TrimSpace(env["API_GATEWAY_PROVIDER"]))
	required := []string{}
	if provider == "" || provider == "wompi" {
		required = append(required, "Gateway.PrivateKey", "Gateway.IntegritySecret", "Gateway.WebhookSecret")
	}
	if provider == "stripe" || strings.TrimSpace(env["API_STRIPE_API_KEY"]) != "" {
		required = append(required, "Stripe.APIKey", "Stripe.WebhookSecret")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_STORAGE_BACKEND"]), config.StoreBackendPostgres) {
		required = append(required, "Postgres.DSN")
	}
	return required
}

// newIdempotencyStore keeps keys beside the orders on Firestore. Other backends fall back to
// process memory, which only deduplicates retries that reach the same instance.
func newIdempotencyStore(ctx context.Context, reg repositories.Registry) (idempotency.Store, error) {
	fs, ok := reg.(*firestoreRepo.Registry)
	if !ok {
		return idempotency.NewMemoryStore(), nil
	}
	client, err := fs.Provider().Client(ctx)
	if err != nil {
		return nil, err
	}
	return idempotency.NewFirestoreStore(client, idempotencyCollection), nil
}

func buildStaffMiddleware(ctx context.Context, logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		logger.Warn("admin routes disabled; firebase project not configured")
		return nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewStaffAuthenticator(verifier).RequireStaff()
}

// buildOIDCMiddleware guards internal routes. Local environments without an audience run them
// unauthenticated; elsewhere a missing audience disables the routes.
func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) (func(http.Handler) http.Handler, bool) {
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		if cfg.Security.Environment == "local" {
			logger.Warn("internal routes running without oidc; local environment")
			return func(next http.Handler) http.Handler { return next }, true
		}
		logger.Warn("internal routes disabled; oidc audience not configured")
		return nil, false
	}
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil)
	validator, err := auth.NewOIDCValidator(cache, logger)
	if err != nil {
		logger.Fatal("failed to initialise oidc validator", zap.Error(err))
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers), true
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
