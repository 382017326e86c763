package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const callerTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// Installs a global provider, so it does not run in parallel.
func TestRouterSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	Install(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(ServiceName))
	r.HandleFunc("/api/v1/compass/swipe", func(w http.ResponseWriter, r *http.Request) {
		_, span := otel.Tracer("compass-test").Start(r.Context(), "compass.log_swipe")
		span.End()
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	tests := []struct {
		name        string
		traceParent string
	}{
		{name: "new trace"},
		{name: "caller trace", traceParent: "00-" + callerTraceID + "-00f067aa0ba902b7-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest("POST", "/api/v1/compass/swipe", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("got %d spans, want handler child and server span", len(spans))
			}
			child, server := spans[0], spans[1]
			if server.Name != "/api/v1/compass/swipe" {
				t.Errorf("server span name = %q, want the route template", server.Name)
			}
			if child.Parent.SpanID() != server.SpanContext.SpanID() {
				t.Error("handler span is not a child of the server span")
			}
			if child.SpanContext.TraceID() != server.SpanContext.TraceID() {
				t.Error("handler and server spans are in different traces")
			}
			if tt.traceParent != "" {
				if got := server.SpanContext.TraceID().String(); got != callerTraceID {
					t.Errorf("trace ID = %s, want the caller's trace", got)
				}
			}
		})
	}
}
