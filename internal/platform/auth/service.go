package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

const (
	defaultJWKSValidity = 15 * time.Minute
	jwksFetchTimeout    = 5 * time.Second
	meterName           = "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/auth"
)

var (
	// ErrJWKSKeyNotFound is returned when the key id is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding failures while loading the key set.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// JWKSCache fetches signing keys on demand and keeps them until Cache-Control max-age expires.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

// NewJWKSCache builds a cache for url. A nil client uses http.DefaultClient.
func NewJWKSCache(url string, client *http.Client) *JWKSCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &JWKSCache{url: url, client: client, now: time.Now}
}

// Key returns the public key for kid, refreshing once on a miss or when the set expired.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.now().Before(c.expiry) {
		return nil, false
	}
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := maxAge(resp.Header.Get("Cache-Control"))
	if validity <= 0 {
		validity = defaultJWKSValidity
	}
	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()
	return nil
}

func maxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// ServiceIdentity is the verified caller of an internal route (Cloud Scheduler, Tasks).
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceContextKey struct{}

// ServiceFromContext returns the identity stored by RequireOIDC.
func ServiceFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// OIDCValidator checks Google-signed RS256 ID tokens against a JWKS cache.
type OIDCValidator struct {
	cache         *JWKSCache
	logger        *zap.Logger
	verifications metric.Int64Counter
}

// NewOIDCValidator builds a validator. Outcomes are counted on auth.oidc.verifications.
func NewOIDCValidator(cache *JWKSCache, logger *zap.Logger) (*OIDCValidator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter("auth.oidc.verifications",
		metric.WithDescription("OIDC verifications by outcome"))
	if err != nil {
		return nil, fmt.Errorf("auth: register counter: %w", err)
	}
	return &OIDCValidator{cache: cache, logger: logger.Named("oidc"), verifications: counter}, nil
}

// RequireOIDC admits requests bearing a token for audience issued by one of issuers.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make(map[string]bool, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers[issuer] = true
		}
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(status int, code, reason string, err error) {
				v.record(ctx, reason)
				fields := []zap.Field{zap.String("reason", reason)}
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				requestctx.Logger(ctx).Warn("oidc verification failed", fields...)
				httpx.WriteError(ctx, w, httpx.NewError(code, "service authentication failed", status))
			}

			if v == nil || v.cache == nil || audience == "" {
				reject(http.StatusServiceUnavailable, "verification_unavailable", "not_configured", nil)
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(http.StatusUnauthorized, "unauthenticated", "token_missing", nil)
				return
			}

			claims := jwt.MapClaims{}
			_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
				kid, _ := token.Header["kid"].(string)
				if kid == "" {
					return nil, errors.New("token missing kid header")
				}
				return v.cache.Key(ctx, kid)
			})
			if err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					reject(http.StatusServiceUnavailable, "verification_unavailable", "jwks_unavailable", err)
					return
				}
				reject(http.StatusUnauthorized, "invalid_token", "token_invalid", err)
				return
			}

			issuer, _ := claims["iss"].(string)
			if len(allowedIssuers) > 0 && !allowedIssuers[issuer] {
				reject(http.StatusUnauthorized, "invalid_token", "issuer_mismatch", nil)
				return
			}
			if !claims.VerifyAudience(audience, true) {
				reject(http.StatusUnauthorized, "invalid_token", "audience_mismatch", nil)
				return
			}

			identity := &ServiceIdentity{Issuer: issuer}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)
			v.record(ctx, "ok")

			actor := identity.Email
			if actor == "" {
				actor = identity.Subject
			}
			ctx = context.WithValue(ctx, serviceContextKey{}, identity)
			ctx = requestctx.WithActor(ctx, "service:"+actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (v *OIDCValidator) record(ctx context.Context, outcome string) {
	if v == nil || v.verifications == nil {
		return
	}
	v.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
