// Package config loads service configuration from an optional YAML file,
// with environment variables taking precedence. A .env file is read first
// so local development does not need exported shell state.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Auth struct {
		Mode       string `yaml:"mode"` // dev, hmac, jwks
		HMACSecret string `yaml:"hmac_secret"`
		JWKSURL    string `yaml:"jwks_url"`
	} `yaml:"auth"`

	Geofence struct {
		RadiusM               float64 `yaml:"radius_m"`
		PoorAccuracyThreshold float64 `yaml:"poor_accuracy_threshold_m"`
	} `yaml:"geofence"`

	Webhooks struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"webhooks"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Load reads CONFIG_FILE (or config.yaml when present), then applies env
// overrides. Missing files are not an error; a broken YAML file is.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{Port: 8080}
	cfg.Geofence.RadiusM = 100
	cfg.Geofence.PoorAccuracyThreshold = 50
	cfg.Webhooks.MaxAttempts = 10
	cfg.RateLimit.RPS = 50
	cfg.RateLimit.Burst = 100

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = n
	}
	if v := os.Getenv("DATABASE_URL"); v != "" { cfg.DatabaseURL = v }
	if v := os.Getenv("REDIS_URL"); v != "" { cfg.RedisURL = v }
	if v := os.Getenv("AUTH_MODE"); v != "" { cfg.Auth.Mode = v }
	if v := os.Getenv("AUTH_HMAC_SECRET"); v != "" { cfg.Auth.HMACSecret = v }
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" { cfg.Auth.JWKSURL = v }
	if v := os.Getenv("GEOFENCE_RADIUS_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GEOFENCE_RADIUS_M %q", v)
		}
		cfg.Geofence.RadiusM = f
	}
	if v := os.Getenv("POOR_ACCURACY_THRESHOLD_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POOR_ACCURACY_THRESHOLD_M %q", v)
		}
		cfg.Geofence.PoorAccuracyThreshold = f
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 { cfg.Webhooks.MaxAttempts = n }
	}
	return cfg, nil
}
