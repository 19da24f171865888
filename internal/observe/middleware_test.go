package observe

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
// It swaps the global tracer provider, so callers must not run in parallel.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// testMux mounts a few war room shaped routes behind the middleware.
func testMux(m *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/artifacts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/forge", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(m)(mux)
}

func attrString(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	var capturedCID string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/council", nil))

	if len(capturedCID) != 32 {
		t.Fatalf("correlation ID = %q, want 32 hex chars", capturedCID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != capturedCID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, capturedCID)
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	m, _, _ := testSetup(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var capturedCID string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/council", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if capturedCID != traceID {
		t.Errorf("correlation ID = %q, want %q", capturedCID, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	m, _, exp := testSetup(t)

	rec := httptest.NewRecorder()
	testMux(m).ServeHTTP(rec, httptest.NewRequest("GET", "/api/artifacts/3f2a", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if want := "HTTP GET /api/artifacts/{id}"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
	if got, _ := attrString(spans[0].Attributes, "http.route"); got != "/api/artifacts/{id}" {
		t.Errorf("http.route = %q", got)
	}
	if got, _ := attrString(spans[0].Attributes, "url.path"); got != "/api/artifacts/3f2a" {
		t.Errorf("url.path = %q", got)
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	m, _, exp := testSetup(t)

	rec := httptest.NewRecorder()
	testMux(m).ServeHTTP(rec, httptest.NewRequest("POST", "/api/forge", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
	if got, _ := attrString(spans[0].Attributes, "http.response.status_code"); got != "502" {
		t.Errorf("http.response.status_code = %q, want 502", got)
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	h := testMux(m)

	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/artifacts/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "warroom.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		rt, _ := dp.Attributes.Value("route")
		st, _ := dp.Attributes.Value("status")
		counts[rt.AsString()+" "+st.Emit()] += dp.Count
	}
	if counts["/api/artifacts/{id} 200"] != 3 {
		t.Errorf("artifact route count = %d, want 3 (counts %v)", counts["/api/artifacts/{id} 200"], counts)
	}
	if counts["unmatched 404"] != 1 {
		t.Errorf("unmatched count = %d, want 1 (counts %v)", counts["unmatched 404"], counts)
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	m, _, _ := testSetup(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	h := testMux(m)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	if strings.Contains(buf.String(), "request completed") {
		t.Errorf("probe request logged at info: %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/artifacts/x", nil))
	if !strings.Contains(buf.String(), "route=/api/artifacts/{id}") {
		t.Errorf("api request not logged with route: %s", buf.String())
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	testSetup(t)
	rec := httptest.NewRecorder()
	testMux(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestMiddleware_PreservesHijacker(t *testing.T) {
	m, _, _ := testSetup(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("expected http.Hijacker to be preserved")
		}
		if _, _, err := hj.Hijack(); err != nil {
			t.Fatalf("hijack: %v", err)
		}
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/council/events", nil))

	if !rec.hijacked {
		t.Error("underlying hijacker was not invoked")
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	t.Parallel()
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected error when the wrapped writer cannot hijack")
	}
}
