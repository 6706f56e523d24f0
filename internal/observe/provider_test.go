package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestSetup(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	ctx := context.Background()
	tel, err := Setup(ctx, ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	_, span := StartSpan(ctx, "probe")
	if !span.SpanContext().IsSampled() {
		t.Error("spans from the global tracer are not sampled")
	}
	span.End()

	m, err := NewMetrics(tel.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "local")))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{"jarvis_commands", `kind="local"`, "go_goroutines", `service_name="jarvis"`} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
