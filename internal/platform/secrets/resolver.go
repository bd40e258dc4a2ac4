package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackFile = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	meterName           = "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/secrets"
)

// Resolution sources reported on the secrets.resolutions counter.
const (
	sourceCache    = "cache"
	sourceRemote   = "secret_manager"
	sourceFallback = "fallback_file"
	sourceError    = "error"
)

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Options configures a Resolver.
type Options struct {
	// ProjectID is used for references without a ?project= override.
	ProjectID string

	// FallbackFile holds secret://name=value lines for local development.
	FallbackFile string

	CacheTTL      time.Duration
	Logger        *zap.Logger
	Meter         metric.Meter
	ClientOptions []option.ClientOption

	client accessor
}

// Resolver turns secret:// and sm:// references into values. Remote values are cached for
// CacheTTL; when Secret Manager is unreachable or denies access the local file is consulted.
type Resolver struct {
	client     accessor
	ownsClient bool
	project    string
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time

	fallbackFile string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cached

	resolutions metric.Int64Counter
}

type cached struct {
	value   string
	expires time.Time
}

// NewResolver builds a resolver. A Secret Manager client that cannot be created leaves the
// resolver in fallback-only mode.
func NewResolver(ctx context.Context, opts Options) (*Resolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	counter, err := meter.Int64Counter("secrets.resolutions",
		metric.WithDescription("Secret resolutions by source"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register counter: %w", err)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	file := strings.TrimSpace(opts.FallbackFile)
	if file == "" {
		file = defaultFallbackFile
	}

	r := &Resolver{
		client:       opts.client,
		project:      strings.TrimSpace(opts.ProjectID),
		ttl:          ttl,
		logger:       logger.Named("secrets"),
		now:          time.Now,
		fallbackFile: file,
		cache:        make(map[string]cached),
		resolutions:  counter,
	}
	if r.client == nil && r.project != "" {
		client, err := secretmanager.NewClient(ctx, opts.ClientOptions...)
		if err != nil {
			r.logger.Warn("secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseRef(ref)
	if err != nil {
		r.count(ctx, sourceError)
		return "", err
	}

	if value, ok := r.cached(parsed.key()); ok {
		r.count(ctx, sourceCache)
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.project
	}
	if project != "" && r.client != nil {
		value, err := r.access(ctx, parsed.resource(project))
		switch {
		case err == nil:
			r.store(parsed.key(), value)
			r.count(ctx, sourceRemote)
			return value, nil
		case !canFallBack(err):
			r.count(ctx, sourceError)
			return "", fmt.Errorf("secrets: access %s: %w", parsed.name, err)
		}
		r.logger.Debug("secret manager lookup failed, trying fallback file", zap.String("secret", parsed.name), zap.Error(err))
	}

	if value, ok := r.lookupFallback(parsed); ok {
		r.store(parsed.key(), value)
		r.count(ctx, sourceFallback)
		return value, nil
	}
	r.count(ctx, sourceError)
	return "", fmt.Errorf("secrets: %s not found", parsed.name)
}

// Invalidate drops a cached value so the next resolution reads it again.
func (r *Resolver) Invalidate(ref string) {
	parsed, err := parseRef(ref)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, parsed.key())
	r.mu.Unlock()
}

func (r *Resolver) access(ctx context.Context, resource string) (string, error) {
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("empty payload")
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	if !ok || !r.now().Before(entry.expires) {
		return "", false
	}
	return entry.value, true
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = cached{value: value, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) count(ctx context.Context, source string) {
	r.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Resolver) lookupFallback(ref secretRef) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = readFallbackFile(r.fallbackFile, r.logger)
	})
	if value, ok := r.fallback[ref.key()]; ok {
		return value, true
	}
	value, ok := r.fallback[ref.name]
	return value, ok
}

// readFallbackFile parses name=value lines. Names may be written with or without the scheme.
func readFallbackFile(path string, logger *zap.Logger) map[string]string {
	values := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("unable to read fallback secrets", zap.String("path", path), zap.Error(err))
		}
		return values
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if parsed, err := parseRef(name); err == nil {
			values[parsed.key()] = value
			if parsed.version == "latest" {
				values[parsed.name] = value
			}
			continue
		}
		values[name] = value
	}
	return values
}

type secretRef struct {
	name    string
	version string
	project string
}

func (s secretRef) key() string { return s.project + "/" + s.name + "@" + s.version }

func (s secretRef) resource(project string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, s.name, s.version)
}

// parseRef accepts secret://name and sm://name with optional version and project query params.
func parseRef(ref string) (secretRef, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return secretRef{}, fmt.Errorf("secrets: invalid secret name in %q", ref)
	}
	q := u.Query()
	version := strings.TrimSpace(q.Get("version"))
	if version == "" {
		version = "latest"
	}
	return secretRef{name: name, version: version, project: strings.TrimSpace(q.Get("project"))}, nil
}

func canFallBack(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	default:
		return false
	}
}
