package tracing

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_DisabledIsNoOp(t *testing.T) {
	provider, err := NewProvider(Config{ServiceName: "eventide-api", Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.IsEnabled() {
		t.Error("disabled config reported enabled")
	}

	// A disabled provider still hands out usable tracers.
	_, span := provider.Tracer("eventide").Start(context.Background(), "search")
	span.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on disabled provider: %v", err)
	}
}

func TestNewProvider_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{Enabled: true, SamplingRate: 0.5}},
		{"negative sampling rate", Config{ServiceName: "eventide-api", Enabled: true, SamplingRate: -0.1}},
		{"sampling rate above one", Config{ServiceName: "eventide-api", Enabled: true, SamplingRate: 1.5}},
		{"unknown exporter", Config{ServiceName: "eventide-api", Enabled: true, SamplingRate: 1.0, ExporterType: "jaeger-thrift"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Errorf("NewProvider(%+v) succeeded, want error", tt.cfg)
			}
		})
	}
}

func TestNewProvider_ExporterVariants(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			"otlp-http sampled",
			Config{ServiceName: "eventide-api", Enabled: true, Environment: "development",
				ExporterType: "otlp-http", OTLPEndpoint: "localhost:4318", SamplingRate: 0.1, InsecureMode: true},
		},
		{
			"otlp-grpc full sampling",
			Config{ServiceName: "eventide-sweeper", Enabled: true, Environment: "development",
				ExporterType: "otlp-grpc", OTLPEndpoint: "localhost:4317", SamplingRate: 1.0, InsecureMode: true},
		},
		{
			"default exporter never sampled",
			Config{ServiceName: "eventide-api", Enabled: true, SamplingRate: 0.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if !provider.IsEnabled() {
				t.Error("enabled config reported disabled")
			}
			if provider.Tracer("eventide/db") == nil {
				t.Error("Tracer returned nil")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown: %v", err)
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}
