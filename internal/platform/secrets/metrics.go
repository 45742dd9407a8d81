package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/donabox/api/internal/platform/secrets"

// Sources reported on the latency histogram.
const (
	sourceCache    = "cache"
	sourceRemote   = "remote"
	sourceFallback = "fallback"
	sourceError    = "error"
)

type fetchMetrics struct {
	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

// newFetchMetrics registers the instruments. An instrument that fails to register is
// left nil and skipped.
func newFetchMetrics(meter metric.Meter, logger *zap.Logger) fetchMetrics {
	var m fetchMetrics
	var err error
	m.latency, err = meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source"),
	)
	if err != nil {
		logger.Warn("secrets: latency histogram unavailable", zap.Error(err))
	}
	m.cacheHits, err = meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	)
	if err != nil {
		logger.Warn("secrets: cache hit counter unavailable", zap.Error(err))
	}
	return m
}

func (m fetchMetrics) observe(ctx context.Context, start time.Time, source string) {
	if m.latency == nil {
		return
	}
	m.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// hit labels the counter with a hash so secret names stay out of metrics.
func (m fetchMetrics) hit(ctx context.Context, ref Reference) {
	if m.cacheHits == nil {
		return
	}
	sum := sha256.Sum256([]byte(ref.String()))
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", hex.EncodeToString(sum[:8]))))
}
