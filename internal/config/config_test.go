package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SNAPSHOT_EVERY", "")
	t.Setenv("UNKNOWN_LABEL_POLICY", "")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.SnapshotEvery != 10 {
		t.Errorf("Expected snapshot cadence 10, got %d", cfg.SnapshotEvery)
	}
	if cfg.SkipUnknownLabels() {
		t.Error("Unknown labels should be fatal by default")
	}
	if !cfg.CheckPassword("admin") {
		t.Error("Default password should match")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("UNKNOWN_LABEL_POLICY", "SKIP")
	t.Setenv("PAUSE_POLL_INTERVAL", "20ms")
	t.Setenv("RECORD_ON_START", "true")
	t.Setenv("CONF_THRESHOLD", "0.4")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if !cfg.CheckPassword("secret") || cfg.CheckPassword("admin") {
		t.Error("Password hash does not match PASSWORD")
	}
	if !cfg.SkipUnknownLabels() {
		t.Error("Expected skip policy")
	}
	if cfg.PausePollInterval != 20*time.Millisecond {
		t.Errorf("Expected 20ms poll interval, got %v", cfg.PausePollInterval)
	}
	if !cfg.RecordOnStart {
		t.Error("Expected RecordOnStart")
	}
	if cfg.ConfThreshold != 0.4 {
		t.Errorf("Expected threshold 0.4, got %v", cfg.ConfThreshold)
	}
}

func TestGetEnvHelpers_InvalidValues(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "ten")

	if got := getEnvAsInt("TEST_INT", 5); got != 5 {
		t.Errorf("getEnvAsInt = %d, expected 5", got)
	}
	if got := getEnvAsBool("TEST_BOOL", true); !got {
		t.Error("getEnvAsBool should fall back to default")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration = %v, expected 1s", got)
	}
}
