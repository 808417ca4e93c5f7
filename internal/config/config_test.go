package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Geofence.RadiusM != 100 || cfg.Geofence.PoorAccuracyThreshold != 50 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("port: 9000\ngeofence:\n  radius_m: 150\nauth:\n  mode: hmac\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Env beats YAML, YAML beats defaults.
	if cfg.Port != 9100 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Geofence.RadiusM != 150 || cfg.Auth.Mode != "hmac" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PORT", "http")
	if _, err := Load(); err == nil {
		t.Fatal("bad PORT accepted")
	}
}
