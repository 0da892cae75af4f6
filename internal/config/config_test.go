package config

import "testing"

func TestLoadTelemetryPrefersSpecificOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "staging")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("LOG_FORMAT", "Console")

	cfg := Load()
	if cfg.Environment != "staging" {
		t.Fatalf("expected DEPLOYMENT_ENV to win, got %q", cfg.Environment)
	}
	if cfg.Telemetry.ExporterProtocol != "http" {
		t.Fatalf("expected traces protocol override, got %q", cfg.Telemetry.ExporterProtocol)
	}
	if cfg.Telemetry.SamplingRatio != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", cfg.Telemetry.SamplingRatio)
	}
	if cfg.Telemetry.LogFormat != "console" {
		t.Fatalf("expected lowercased format, got %q", cfg.Telemetry.LogFormat)
	}
}
