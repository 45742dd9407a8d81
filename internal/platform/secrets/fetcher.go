// Package secrets resolves secret:// references against Google Secret Manager, with a
// TTL cache and a local fallback file for development.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 5 * time.Minute
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessor, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// accessor is the part of the Secret Manager client the fetcher uses.
type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type Fetcher struct {
	client     accessor
	ownsClient bool
	logger     *zap.Logger
	project    string
	ttl        time.Duration
	now        func() time.Time
	metrics    fetchMetrics

	fallbackPath string
	fallbackOnce sync.Once
	fallback     fallbackValues
	fallbackErr  error

	mu       sync.Mutex
	cache    map[string]cached
	inflight singleflight.Group
}

type cached struct {
	value   string
	expires time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	ttl          time.Duration
	clock        func() time.Time
	meter        metric.Meter
	client       accessor
	clientOpts   []option.ClientOption
}

type Option func(*fetcherConfig)

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithProject is used for references without a project parameter. Without a project
// only the fallback file is consulted.
func WithProject(project string) Option {
	return func(cfg *fetcherConfig) { cfg.project = strings.TrimSpace(project) }
}

// WithFallbackFile replaces .secrets.local. An empty path keeps the default.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		if path = strings.TrimSpace(path); path != "" {
			cfg.fallbackPath = path
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient uses client instead of dialing one. The fetcher does not
// close it.
func WithSecretManagerClient(client accessor) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher never fails on a missing Secret Manager client: without credentials the
// fetcher serves the fallback file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:       cfg.client,
		logger:       cfg.logger,
		project:      cfg.project,
		ttl:          cfg.ttl,
		now:          cfg.clock,
		metrics:      newFetchMetrics(cfg.meter, cfg.logger),
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cached),
	}
	if f.client == nil {
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable; using fallback file only", zap.Error(err))
		} else {
			f.client, f.ownsClient = client, true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret returns the value of ref from the cache, Secret Manager or the
// fallback file, in that order. The fallback file is only used when Secret Manager is
// not configured or refuses the call; a secret Secret Manager does not have is an error.
// Concurrent calls for the same reference share one lookup.
func (f *Fetcher) ResolveSecret(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := ParseReference(raw)
	if err != nil {
		return "", err
	}
	key := ref.cacheKey()
	if value, ok := f.cached(key); ok {
		f.metrics.hit(ctx, ref)
		f.metrics.observe(ctx, start, sourceCache)
		return value, nil
	}

	result, err, _ := f.inflight.Do(key, func() (any, error) {
		value, source, err := f.lookup(ctx, ref)
		if err != nil {
			f.metrics.observe(ctx, start, sourceError)
			return "", err
		}
		f.store(key, value)
		f.metrics.observe(ctx, start, source)
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached value of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := ParseReference(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	delete(f.cache, ref.cacheKey())
	f.mu.Unlock()
}

func (f *Fetcher) lookup(ctx context.Context, ref Reference) (string, string, error) {
	if f.client != nil && (ref.Project != "" || f.project != "") {
		value, err := f.access(ctx, ref)
		if err == nil {
			return value, sourceRemote, nil
		}
		if !refused(err) {
			return "", "", fmt.Errorf("secrets: fetch %s: %w", ref, err)
		}
		f.logger.Debug("secrets: secret manager refused; trying fallback file", zap.String("ref", ref.String()), zap.Error(err))
	}

	f.fallbackOnce.Do(func() {
		f.fallback, f.fallbackErr = readFallback(f.fallbackPath)
	})
	if f.fallbackErr != nil {
		return "", "", f.fallbackErr
	}
	value, ok := f.fallback.lookup(ref)
	if !ok {
		return "", "", fmt.Errorf("secrets: %s not found in fallback file", ref)
	}
	return value, sourceFallback, nil
}

func (f *Fetcher) access(ctx context.Context, ref Reference) (string, error) {
	name := ref.resourceName(f.project)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok || !f.now().Before(entry.expires) {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cached{value: value, expires: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

// refused reports errors that mean Secret Manager is unreachable for this caller, as
// opposed to the secret not existing.
func refused(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
