package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":      "shop-dev",
		"API_GATEWAY_PUBLIC_KEY":       "pub_test_123",
		"API_GATEWAY_PRIVATE_KEY":      "prv_test_123",
		"API_GATEWAY_INTEGRITY_SECRET": "test_integrity",
		"API_GATEWAY_WEBHOOK_SECRET":   "test_events",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "shop-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "shop-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Storage.Backend != StoreBackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Gateway.Provider != "wompi" || cfg.Gateway.BaseURL != defaultGatewayBaseURL {
		t.Errorf("unexpected gateway defaults %+v", cfg.Gateway)
	}
	if cfg.Gateway.SignatureHeader != "X-Event-Checksum" || cfg.Gateway.TimestampHeader != "X-Event-Timestamp" {
		t.Errorf("unexpected webhook headers %s %s", cfg.Gateway.SignatureHeader, cfg.Gateway.TimestampHeader)
	}
	if cfg.Pricing.FreeShippingThresholdCents != 5_000_000 || cfg.Pricing.ShippingCostCents != 1_000_000 {
		t.Errorf("unexpected pricing defaults %+v", cfg.Pricing)
	}
	if cfg.Pricing.TaxRate != "0.19" {
		t.Errorf("unexpected tax rate %s", cfg.Pricing.TaxRate)
	}
	if cfg.Checkout.Currency != "COP" || cfg.Checkout.AmountToleranceCents != 100 {
		t.Errorf("unexpected checkout defaults %+v", cfg.Checkout)
	}
	if cfg.Reconcile.PollAttempts != 5 || cfg.Reconcile.PollDelay != 2*time.Second {
		t.Errorf("unexpected reconcile defaults %+v", cfg.Reconcile)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_STORAGE_BACKEND":                "POSTGRES",
		"API_POSTGRES_DSN":                   "secret://postgres/dsn",
		"API_GATEWAY_PROVIDER":               "stripe",
		"API_STRIPE_API_KEY":                 "secret://stripe/api",
		"API_STRIPE_WEBHOOK_SECRET":          "sm://stripe/webhook",
		"API_STRIPE_INTEGRITY_SECRET":        "stripe_integrity",
		"API_PRICING_TAX_RATE":               "0.08",
		"API_PRICING_SHIPPING_COST":          "500",
		"API_CHECKOUT_CURRENCY":              "usd",
		"API_RECONCILE_POLL_ATTEMPTS":        "3",
		"API_RECONCILE_POLL_DELAY":           "500ms",
		"API_PUBSUB_PAYMENTS_TOPIC":          "payments",
		"API_SECURITY_OIDC_AUDIENCE":         "https://checkout.example.com",
		"API_SECURITY_OIDC_ISSUERS":          "https://accounts.google.com, https://cloud.google.com/iap",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_CLEANUP_BATCH":      "500",
		"API_STORAGE_WEBHOOK_ARCHIVE_BUCKET": "webhooks-archive",
	}

	secrets := map[string]string{
		"secret://postgres/dsn":   "postgres://shop:pw@localhost/shop",
		"secret://stripe/api":     "sk_test_123",
		"secret://stripe/webhook": "whsec_123",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Storage.Backend != StoreBackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Postgres.DSN != "postgres://shop:pw@localhost/shop" {
		t.Errorf("expected resolved dsn, got %s", cfg.Postgres.DSN)
	}
	if cfg.Stripe.APIKey != "sk_test_123" || cfg.Stripe.WebhookSecret != "whsec_123" || cfg.Stripe.IntegritySecret != "stripe_integrity" {
		t.Errorf("unexpected stripe config %+v", cfg.Stripe)
	}
	if cfg.Pricing.TaxRate != "0.08" || cfg.Pricing.ShippingCostCents != 500 {
		t.Errorf("unexpected pricing %+v", cfg.Pricing)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Checkout.Currency)
	}
	if cfg.Reconcile.PollAttempts != 3 || cfg.Reconcile.PollDelay != 500*time.Millisecond {
		t.Errorf("unexpected reconcile %+v", cfg.Reconcile)
	}
	if cfg.PubSub.PaymentsTopic != "payments" {
		t.Errorf("unexpected topic %s", cfg.PubSub.PaymentsTopic)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected idempotency %+v", cfg.Idempotency)
	}
	if cfg.Storage.WebhookArchiveBucket != "webhooks-archive" {
		t.Errorf("unexpected archive bucket %s", cfg.Storage.WebhookArchiveBucket)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"shop-dot\"\nAPI_GATEWAY_PUBLIC_KEY=pub\nAPI_GATEWAY_INTEGRITY_SECRET=integrity\nAPI_GATEWAY_WEBHOOK_SECRET=events\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "shop-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firestore.ProjectID": true, "Gateway.PublicKey": true, "Gateway.IntegritySecret": true}
	for _, field := range fields {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("expected fields %v to be reported, got %v", want, fields)
	}
}

func TestLoadRejectsUnknownBackendAndBadTaxRate(t *testing.T) {
	env := baseEnv()
	env["API_STORAGE_BACKEND"] = "mongo"
	env["API_PRICING_TAX_RATE"] = "nineteen"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	got := map[string]bool{}
	for _, field := range validation.Fields() {
		got[field] = true
	}
	if !got["Storage.Backend"] || !got["Pricing.TaxRate"] {
		t.Fatalf("unexpected fields %v", validation.Fields())
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_GATEWAY_PRIVATE_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := baseEnv()
	delete(env, "API_GATEWAY_PRIVATE_KEY")

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Gateway.PrivateKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != redactSecretName("Gateway.PrivateKey") {
		t.Fatalf("unexpected redacted names %v", got)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Gateway.PrivateKey" {
		t.Fatalf("unexpected names %v", names)
	}
}
