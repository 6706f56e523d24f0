// Package observe provides application-wide observability primitives for
// Jarvis: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by the providers [Setup] builds. Tests pass their own
// [metric.MeterProvider] to [NewMetrics].
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Jarvis metrics.
const meterName = "github.com/MrWong99/jarvis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks remote language-model latency.
	LLMDuration metric.Float64Histogram

	// LoopDuration tracks how long the event loop spends on one event. Use
	// with attribute.String("event", ...).
	LoopDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Commands counts interpreted transcript updates by action kind. Use
	// with attribute.String("kind", ...).
	Commands metric.Int64Counter

	// Gestures counts recognized gestures. Use with
	// attribute.String("gesture", "drag"|"swipe").
	Gestures metric.Int64Counter

	// Dropped counts sensor samples replaced before the loop read them. Use
	// with attribute.String("source", "transcript"|"frame").
	Dropped metric.Int64Counter

	// DeviceNotifications counts side-effect notifications. Use with
	// attribute.String("sink", ...) and attribute.String("status", ...).
	DeviceNotifications metric.Int64Counter

	// SpeechRestarts counts speech-source session restarts.
	SpeechRestarts metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// OverlayClients tracks the number of connected overlay clients.
	OverlayClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// loopBuckets are finer boundaries for in-process event handling.
var loopBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("jarvis.llm.duration",
		metric.WithDescription("Latency of remote language-model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LoopDuration, err = m.Float64Histogram("jarvis.loop.duration",
		metric.WithDescription("Time spent handling one event-loop event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(loopBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("jarvis.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("jarvis.commands",
		metric.WithDescription("Interpreted transcript updates by action kind."),
	); err != nil {
		return nil, err
	}
	if met.Gestures, err = m.Int64Counter("jarvis.gestures",
		metric.WithDescription("Recognized gestures by type."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64Counter("jarvis.stream.dropped",
		metric.WithDescription("Sensor samples replaced before the event loop consumed them."),
	); err != nil {
		return nil, err
	}
	if met.DeviceNotifications, err = m.Int64Counter("jarvis.device.notifications",
		metric.WithDescription("Device and bridge notifications by sink and status."),
	); err != nil {
		return nil, err
	}
	if met.SpeechRestarts, err = m.Int64Counter("jarvis.speech.restarts",
		metric.WithDescription("Speech-source session restarts."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("jarvis.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OverlayClients, err = m.Int64UpDownCounter("jarvis.overlay.clients",
		metric.WithDescription("Number of connected overlay clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCommand counts one interpreted update.
func (m *Metrics) RecordCommand(ctx context.Context, kind string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordGesture counts one recognized gesture.
func (m *Metrics) RecordGesture(ctx context.Context, gesture string) {
	m.Gestures.Add(ctx, 1, metric.WithAttributes(attribute.String("gesture", gesture)))
}

// RecordDropped counts one replaced sensor sample.
func (m *Metrics) RecordDropped(ctx context.Context, source string) {
	m.Dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDeviceNotification counts one sink notification.
func (m *Metrics) RecordDeviceNotification(ctx context.Context, sink, status string) {
	m.DeviceNotifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}
