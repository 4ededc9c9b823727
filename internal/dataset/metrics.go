package dataset

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Load outcomes recorded on the loads counter.
const (
	tierLocal    = "local"
	tierRemote   = "remote"
	tierFallback = "fallback"
	tierMiss     = "miss"
)

type cacheMetrics struct {
	loads        metric.Int64Counter
	saves        metric.Int64Counter
	mirrorErrors metric.Int64Counter
}

// newCacheMetrics registers the cache instruments on the global meter
// provider. Without a configured provider they are no-ops.
func newCacheMetrics() *cacheMetrics {
	meter := otel.Meter("marketml/dataset")
	m := &cacheMetrics{}
	m.loads, _ = meter.Int64Counter("marketml.dataset.loads",
		metric.WithDescription("Dataset load attempts by serving tier"))
	m.saves, _ = meter.Int64Counter("marketml.dataset.saves",
		metric.WithDescription("Dataset artifacts written locally"))
	m.mirrorErrors, _ = meter.Int64Counter("marketml.dataset.mirror_errors",
		metric.WithDescription("Remote mirror operations that failed"))
	return m
}

func (m *cacheMetrics) load(ctx context.Context, d Descriptor, tier string) {
	if m == nil || m.loads == nil {
		return
	}
	m.loads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(d.Type)),
		attribute.String("tier", tier),
	))
}

func (m *cacheMetrics) save(ctx context.Context, d Descriptor) {
	if m == nil || m.saves == nil {
		return
	}
	m.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(d.Type))))
}

func (m *cacheMetrics) mirrorError(ctx context.Context, op string) {
	if m == nil || m.mirrorErrors == nil {
		return
	}
	m.mirrorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
