package telemetry

import (
	"context"
	"testing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("CMSIM_OTEL_ENDPOINT", "")

	shutdown, err := Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("CMSIM_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("CMSIM_OTEL_ENABLED", "false")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Active() {
		t.Fatal("expected tracing to be inactive")
	}

	shutdown, err := Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// non-routable address, nothing is exported
	t.Setenv("CMSIM_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("CMSIM_OTEL_ENABLED", "true")

	shutdown, err := Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestLoadSettings_InvalidRatio(t *testing.T) {
	t.Setenv("CMSIM_OTEL_SAMPLE_RATIO", "often")
	if _, err := LoadSettings(); err == nil {
		t.Fatal("expected parse error")
	}
}
