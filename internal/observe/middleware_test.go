package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareFixture struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	router  chi.Router
}

// newMiddlewareFixture mounts Middleware on a chi router with a couple of
// representative routes.
func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	m, reader := newTestMetrics(t)
	f := &middlewareFixture{metrics: m, reader: reader, spans: useSpanRecorder(t)}

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/api/devices/{device}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	f.router = r
	return f
}

func (f *middlewareFixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func attrsOf(dp metricdata.HistogramDataPoint[float64]) map[string]string {
	out := make(map[string]string)
	for _, kv := range dp.Attributes.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestMiddleware_TraceIDHeader(t *testing.T) {
	f := newMiddlewareFixture(t)

	rec := f.do("GET", "/healthz", nil)
	id := rec.Header().Get(HeaderTraceID)
	if len(id) != 32 {
		t.Fatalf("%s = %q, want a 32 character trace ID", HeaderTraceID, id)
	}

	const parent = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec = f.do("GET", "/healthz", http.Header{"Traceparent": {"00-" + parent + "-00f067aa0ba902b7-01"}})
	if got := rec.Header().Get(HeaderTraceID); got != parent {
		t.Errorf("propagated %s = %q, want %q", HeaderTraceID, got, parent)
	}
}

func TestMiddleware_RouteLabels(t *testing.T) {
	tests := []struct {
		target string
		route  string
		status string
	}{
		{target: "/api/devices/fan", route: "/api/devices/{device}", status: "202"},
		{target: "/api/devices/lights", route: "/api/devices/{device}", status: "202"},
		{target: "/nowhere", route: "unmatched", status: "404"},
	}

	f := newMiddlewareFixture(t)
	for _, tt := range tests {
		f.do("GET", tt.target, nil)
	}

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "jarvis.http.request.duration")
	if met == nil {
		t.Fatal("jarvis.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data = %T, want histogram", met.Data)
	}

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		a := attrsOf(dp)
		if a["method"] != "GET" {
			t.Errorf("method attribute = %q", a["method"])
		}
		counts[a["route"]+" "+a["status"]] += dp.Count
	}
	if counts["/api/devices/{device} 202"] != 2 {
		t.Errorf("templated route count = %d, want 2 (counts %v)", counts["/api/devices/{device} 202"], counts)
	}
	if counts["unmatched 404"] != 1 {
		t.Errorf("unmatched count = %d, want 1 (counts %v)", counts["unmatched 404"], counts)
	}

	for _, s := range f.spans.GetSpans() {
		if strings.Contains(s.Name, "/fan") || strings.Contains(s.Name, "/lights") {
			t.Errorf("span name %q leaks the raw path", s.Name)
		}
	}
}

func TestMiddleware_ServerErrorFailsSpan(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.do("GET", "/boom", nil)
	f.do("GET", "/healthz", nil)

	spans := f.spans.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name != "GET /boom" || spans[0].Status.Code != codes.Error {
		t.Errorf("span %q status = %v, want Error", spans[0].Name, spans[0].Status.Code)
	}
	if spans[1].Status.Code == codes.Error {
		t.Errorf("span %q marked failed", spans[1].Name)
	}
}

func TestMiddleware_OutsideRouter(t *testing.T) {
	m, _ := newTestMetrics(t)
	exp := useSpanRecorder(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/plain", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "GET unmatched" {
		t.Errorf("spans = %+v, want one named %q", spans, "GET unmatched")
	}
}

func TestMiddleware_Hijack(t *testing.T) {
	m, _ := newTestMetrics(t)
	useSpanRecorder(t)

	var hijackErr error
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("wrapped writer does not implement http.Hijacker")
			return
		}
		_, _, hijackErr = hj.Hijack()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))
	if hijackErr == nil {
		t.Error("expected an error hijacking a recorder")
	}
}
