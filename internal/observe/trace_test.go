package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useSpanRecorder installs an in-memory tracer provider as the global one
// for the duration of the test.
func useSpanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default logger at a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestTraceID(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}

	exp := useSpanRecorder(t)
	ctx, span := StartSpan(context.Background(), "dispatch.remote")
	id := TraceID(ctx)
	span.End()

	if len(id) != 32 || strings.Trim(id, "0123456789abcdef") != "" {
		t.Errorf("TraceID = %q, want 32 lowercase hex characters", id)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "dispatch.remote" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != id {
		t.Errorf("span trace ID = %q, want %q", got, id)
	}
}

func TestStartSpan_ChildSharesTrace(t *testing.T) {
	exp := useSpanRecorder(t)

	ctx, parent := StartSpan(context.Background(), "parent")
	childCtx, child := StartSpan(ctx, "child")
	if TraceID(childCtx) != TraceID(ctx) {
		t.Error("child span started a new trace")
	}
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child span is not parented to the outer span")
	}
}

func TestFail(t *testing.T) {
	exp := useSpanRecorder(t)

	_, span := StartSpan(context.Background(), "llm.generate")
	Fail(span, errors.New("quota exceeded"))
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error || s.Status.Description != "quota exceeded" {
		t.Errorf("status = %+v, want Error(quota exceeded)", s.Status)
	}
	if len(s.Events) != 1 || s.Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception event", s.Events)
	}
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		withSpan bool
		want     bool
	}{
		{name: "inside span", withSpan: true, want: true},
		{name: "no span", withSpan: false, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useSpanRecorder(t)
			buf := captureLogs(t)

			ctx := context.Background()
			if tt.withSpan {
				c, s := StartSpan(ctx, "log")
				defer s.End()
				ctx = c
			}
			Logger(ctx).Info("command dispatched", "device", "lights")

			out := buf.String()
			if !strings.Contains(out, "device=lights") {
				t.Errorf("log output missing caller attrs: %s", out)
			}
			for _, key := range []string{"trace_id=", "span_id="} {
				if got := strings.Contains(out, key); got != tt.want {
					t.Errorf("contains %q = %v, want %v: %s", key, got, tt.want, out)
				}
			}
		})
	}
}
