package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultStoreBackend         = StoreBackendFirestore
	defaultPostgresMaxOpen      = 10
	defaultPostgresMaxIdle      = 5
	defaultPostgresConnLifetime = 30 * time.Minute
	defaultGatewayProvider      = "wompi"
	defaultGatewayBaseURL       = "https://sandbox.wompi.co/v1"
	defaultGatewaySigHeader     = "X-Event-Checksum"
	defaultGatewayTSHeader      = "X-Event-Timestamp"
	defaultGatewayTimeout       = 20 * time.Second
	defaultFreeShippingCents    = 5_000_000
	defaultShippingCostCents    = 1_000_000
	defaultTaxRate              = "0.19"
	defaultCurrency             = "COP"
	defaultAmountTolerance      = 100
	defaultPollAttempts         = 5
	defaultPollDelay            = 2 * time.Second
	defaultPollMaxAttempts      = 10
	defaultSweepAge             = 10 * time.Minute
	defaultSweepLimit           = 50
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Supported persistence backends.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendPostgres  = "postgres"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Storage     StorageConfig
	Gateway     GatewayConfig
	Stripe      StripeConfig
	Pricing     PricingConfig
	Checkout    CheckoutConfig
	Reconcile   ReconcileConfig
	PubSub      PubSubConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings used for staff authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the SQL backend.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// StorageConfig selects the persistence backend and the webhook archive bucket.
type StorageConfig struct {
	Backend              string
	WebhookArchiveBucket string
}

// GatewayConfig holds credentials and wire settings for the default payment gateway.
type GatewayConfig struct {
	Provider        string
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	WebhookSecret   string
	SignatureHeader string
	TimestampHeader string
	Timeout         time.Duration
}

// StripeConfig enables the Stripe gateway when an API key is present.
type StripeConfig struct {
	APIKey          string
	WebhookSecret   string
	IntegritySecret string
}

// PricingConfig overrides the price calculator constants.
type PricingConfig struct {
	FreeShippingThresholdCents int64
	ShippingCostCents          int64
	TaxRate                    string
}

// CheckoutConfig controls checkout defaults.
type CheckoutConfig struct {
	Currency             string
	AmountToleranceCents int64
}

// ReconcileConfig controls status polling and the reconciliation sweep.
type ReconcileConfig struct {
	PollAttempts    int
	PollDelay       time.Duration
	MaxPollAttempts int
	SweepAge        time.Duration
	SweepLimit      int
}

// PubSubConfig configures domain event publication. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID     string
	PaymentsTopic string
	EmulatorHost  string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Gateway.PrivateKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers can
// build dependencies such as the secret fetcher before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:             stringWithDefault(lookup, "API_POSTGRES_DSN", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_POSTGRES_MAX_OPEN_CONNS", defaultPostgresMaxOpen),
			MaxIdleConns:    intWithDefault(lookup, "API_POSTGRES_MAX_IDLE_CONNS", defaultPostgresMaxIdle),
			ConnMaxLifetime: durationWithDefault(lookup, "API_POSTGRES_CONN_MAX_LIFETIME", defaultPostgresConnLifetime),
		},
		Storage: StorageConfig{
			Backend:              strings.ToLower(stringWithDefault(lookup, "API_STORAGE_BACKEND", defaultStoreBackend)),
			WebhookArchiveBucket: stringWithDefault(lookup, "API_STORAGE_WEBHOOK_ARCHIVE_BUCKET", ""),
		},
		Gateway: GatewayConfig{
			Provider:        strings.ToLower(stringWithDefault(lookup, "API_GATEWAY_PROVIDER", defaultGatewayProvider)),
			BaseURL:         strings.TrimRight(stringWithDefault(lookup, "API_GATEWAY_BASE_URL", defaultGatewayBaseURL), "/"),
			PublicKey:       stringWithDefault(lookup, "API_GATEWAY_PUBLIC_KEY", ""),
			PrivateKey:      stringWithDefault(lookup, "API_GATEWAY_PRIVATE_KEY", ""),
			IntegritySecret: stringWithDefault(lookup, "API_GATEWAY_INTEGRITY_SECRET", ""),
			WebhookSecret:   stringWithDefault(lookup, "API_GATEWAY_WEBHOOK_SECRET", ""),
			SignatureHeader: stringWithDefault(lookup, "API_GATEWAY_SIGNATURE_HEADER", defaultGatewaySigHeader),
			TimestampHeader: stringWithDefault(lookup, "API_GATEWAY_TIMESTAMP_HEADER", defaultGatewayTSHeader),
			Timeout:         durationWithDefault(lookup, "API_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Stripe: StripeConfig{
			APIKey:          stringWithDefault(lookup, "API_STRIPE_API_KEY", ""),
			WebhookSecret:   stringWithDefault(lookup, "API_STRIPE_WEBHOOK_SECRET", ""),
			IntegritySecret: stringWithDefault(lookup, "API_STRIPE_INTEGRITY_SECRET", ""),
		},
		Pricing: PricingConfig{
			FreeShippingThresholdCents: int64WithDefault(lookup, "API_PRICING_FREE_SHIPPING_THRESHOLD", defaultFreeShippingCents),
			ShippingCostCents:          int64WithDefault(lookup, "API_PRICING_SHIPPING_COST", defaultShippingCostCents),
			TaxRate:                    stringWithDefault(lookup, "API_PRICING_TAX_RATE", defaultTaxRate),
		},
		Checkout: CheckoutConfig{
			Currency:             strings.ToUpper(stringWithDefault(lookup, "API_CHECKOUT_CURRENCY", defaultCurrency)),
			AmountToleranceCents: int64WithDefault(lookup, "API_CHECKOUT_AMOUNT_TOLERANCE", defaultAmountTolerance),
		},
		Reconcile: ReconcileConfig{
			PollAttempts:    intWithDefault(lookup, "API_RECONCILE_POLL_ATTEMPTS", defaultPollAttempts),
			PollDelay:       durationWithDefault(lookup, "API_RECONCILE_POLL_DELAY", defaultPollDelay),
			MaxPollAttempts: intWithDefault(lookup, "API_RECONCILE_MAX_POLL_ATTEMPTS", defaultPollMaxAttempts),
			SweepAge:        durationWithDefault(lookup, "API_RECONCILE_SWEEP_AGE", defaultSweepAge),
			SweepLimit:      intWithDefault(lookup, "API_RECONCILE_SWEEP_LIMIT", defaultSweepLimit),
		},
		PubSub: PubSubConfig{
			ProjectID:     stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			PaymentsTopic: stringWithDefault(lookup, "API_PUBSUB_PAYMENTS_TOPIC", ""),
			EmulatorHost:  stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Postgres.DSN", &cfg.Postgres.DSN},
		{"Gateway.PrivateKey", &cfg.Gateway.PrivateKey},
		{"Gateway.IntegritySecret", &cfg.Gateway.IntegritySecret},
		{"Gateway.WebhookSecret", &cfg.Gateway.WebhookSecret},
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"Stripe.WebhookSecret", &cfg.Stripe.WebhookSecret},
		{"Stripe.IntegritySecret", &cfg.Stripe.IntegritySecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	normalized := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}

	switch cfg.Storage.Backend {
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreBackendPostgres:
		if strings.TrimSpace(cfg.Postgres.DSN) == "" {
			missing = append(missing, "Postgres.DSN")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}

	switch cfg.Gateway.Provider {
	case "wompi":
		if cfg.Gateway.BaseURL == "" {
			missing = append(missing, "Gateway.BaseURL")
		}
		if cfg.Gateway.PublicKey == "" {
			missing = append(missing, "Gateway.PublicKey")
		}
		if cfg.Gateway.IntegritySecret == "" {
			missing = append(missing, "Gateway.IntegritySecret")
		}
		if cfg.Gateway.WebhookSecret == "" {
			missing = append(missing, "Gateway.WebhookSecret")
		}
	case "stripe":
		if cfg.Stripe.APIKey == "" {
			missing = append(missing, "Stripe.APIKey")
		}
	default:
		missing = append(missing, "Gateway.Provider")
	}

	if _, err := strconv.ParseFloat(cfg.Pricing.TaxRate, 64); err != nil {
		missing = append(missing, "Pricing.TaxRate")
	}
	if len(cfg.Checkout.Currency) != 3 {
		missing = append(missing, "Checkout.Currency")
	}
	if cfg.Reconcile.PollAttempts <= 0 || cfg.Reconcile.MaxPollAttempts < cfg.Reconcile.PollAttempts {
		missing = append(missing, "Reconcile.PollAttempts")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
