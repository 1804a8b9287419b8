package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTracerProviderEmptyBackendIsNoop(t *testing.T) {
	tp, shutdown, err := NewTracerProvider(TracingConfig{})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected a non-nil no-op provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected the no-op shutdown to succeed, got %v", err)
	}
}

func TestNewTracerProviderStdoutBackendBuildsRealExporter(t *testing.T) {
	tp, shutdown, err := NewTracerProvider(TracingConfig{Backend: "stdout"})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected a non-nil tracer provider")
	}
	defer shutdown(context.Background())

	_, span := Tracer().Start(context.Background(), "test-span")
	span.End()
}

func TestNewTracerProviderUnknownBackendReturnsError(t *testing.T) {
	_, _, err := NewTracerProvider(TracingConfig{Backend: "carrier-pigeon"})
	if err == nil {
		t.Fatalf("expected an error for an unknown trace backend")
	}
}

func TestEndSpanRecordsErrorWithoutPanicking(t *testing.T) {
	_, shutdown, err := NewTracerProvider(TracingConfig{Backend: "stdout"})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	defer shutdown(context.Background())

	_, span := StartStepSpan(context.Background(), "m1", "root-1", "TIMER")
	EndSpan(span, time.Now(), errors.New("boom"))
}
