// Package observe provides application-wide observability primitives for the
// transcript engine: OpenTelemetry metrics, tracing helpers, and structured
// logging enrichment.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/taylorparsons/interview-practice-app-sub000"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// DecodedEvents counts inbound transport events by decoded action. Use
	// with attributes:
	//   attribute.String("kind", ...), attribute.Bool("generic", ...)
	DecodedEvents metric.Int64Counter

	// DedupDrops counts candidate finalizations discarded as duplicates.
	DedupDrops metric.Int64Counter

	// ArbitrationRejects counts candidate updates rejected by the
	// freshness-window arbitration. Use with attribute:
	//   attribute.String("source", ...)
	ArbitrationRejects metric.Int64Counter

	// PersistWrites counts persistence writes. Use with attributes:
	//   attribute.String("role", ...), attribute.String("status", ...)
	PersistWrites metric.Int64Counter

	// MemorizeTriggers counts fired memorize command triggers.
	MemorizeTriggers metric.Int64Counter

	// FlushDuration tracks checkpoint flush latency.
	FlushDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for persistence round-trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodedEvents, err = m.Int64Counter("coach.transcript.decoded_events",
		metric.WithDescription("Total decoded transport events by action kind."),
	); err != nil {
		return nil, err
	}
	if met.DedupDrops, err = m.Int64Counter("coach.transcript.dedup_drops",
		metric.WithDescription("Candidate finalizations discarded as duplicates."),
	); err != nil {
		return nil, err
	}
	if met.ArbitrationRejects, err = m.Int64Counter("coach.transcript.arbitration_rejects",
		metric.WithDescription("Candidate updates rejected by freshness arbitration."),
	); err != nil {
		return nil, err
	}
	if met.PersistWrites, err = m.Int64Counter("coach.transcript.persist_writes",
		metric.WithDescription("Persistence writes by role and status."),
	); err != nil {
		return nil, err
	}
	if met.MemorizeTriggers, err = m.Int64Counter("coach.transcript.memorize_triggers",
		metric.WithDescription("Fired memorize command triggers."),
	); err != nil {
		return nil, err
	}
	if met.FlushDuration, err = m.Float64Histogram("coach.transcript.flush.duration",
		metric.WithDescription("Latency of checkpoint flushes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("coach.active_sessions",
		metric.WithDescription("Number of live practice sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics init: " + err.Error())
		}
	})
	return defaultMetrics
}
