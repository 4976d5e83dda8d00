package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestFromLookup(t *testing.T) {
	cfg := FromLookup(mapLookup(map[string]string{
		"DODGEBALL_API_URL":         " https://api.example.com ",
		"DODGEBALL_PRIVATE_API_KEY": "secret",
		"CHECKPOINT_TIMEOUT":        "1500",
		"DODGEBALL_REQUEST_TIMEOUT": "5s",
		"TRACK_CHECKPOINT_EVENTS":   "TRUE",
		"CLIENT_IP_FALLBACK":        "203.0.113.7",
		"LOG_LEVEL":                 "debug",
		"ALLOWED_ORIGINS":           "https://a.example, ,https://b.example",
		"TRUSTED_PROXIES":           "10.0.0.0/8, 192.0.2.1",
	}))

	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}

	if len(cfg.ClientIP.TrustedProxies) != 2 || cfg.ClientIP.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies %v", cfg.ClientIP.TrustedProxies)
	}

	if cfg.Engine.APIURL != "https://api.example.com" {
		t.Fatalf("unexpected api url %q", cfg.Engine.APIURL)
	}
	if cfg.Engine.CheckpointTimeout != 1500 {
		t.Fatalf("unexpected checkpoint timeout %d", cfg.Engine.CheckpointTimeout)
	}
	if cfg.Engine.RequestTimeout.String() != "5s" {
		t.Fatalf("unexpected request timeout %s", cfg.Engine.RequestTimeout)
	}
	if !cfg.TrackCheckpointEvents {
		t.Fatalf("expected event tracking enabled")
	}
	if cfg.ClientIP.Fallback != "203.0.113.7" {
		t.Fatalf("unexpected fallback ip %q", cfg.ClientIP.Fallback)
	}
	if cfg.LogLevel != logrus.DebugLevel {
		t.Fatalf("unexpected log level %s", cfg.LogLevel)
	}
	if cfg.Port != "3020" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if err := cfg.Engine.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromLookupIgnoresInvalidValues(t *testing.T) {
	cfg := FromLookup(mapLookup(map[string]string{
		"CHECKPOINT_TIMEOUT": "soon",
		"LOG_LEVEL":          "loud",
	}))
	if cfg.Engine.CheckpointTimeout != 0 {
		t.Fatalf("expected zero timeout got %d", cfg.Engine.CheckpointTimeout)
	}
	if cfg.LogLevel != logrus.InfoLevel {
		t.Fatalf("expected info level got %s", cfg.LogLevel)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins got %v", cfg.AllowedOrigins)
	}
	if cfg.ClientIP.TrustedProxies != nil {
		t.Fatalf("expected no trusted proxies got %v", cfg.ClientIP.TrustedProxies)
	}
}

func TestEngineValidateReportsMissingKeys(t *testing.T) {
	err := FromLookup(nil).Engine.Validate()
	if !errors.Is(err, ErrMissingEngineConfig) {
		t.Fatalf("expected ErrMissingEngineConfig got %v", err)
	}
	for _, key := range []string{"DODGEBALL_API_URL", "DODGEBALL_PRIVATE_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err.Error())
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CHECKPOINT_GATEWAY_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CHECKPOINT_GATEWAY_TEST_KEY") })
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("CHECKPOINT_GATEWAY_TEST_KEY"); got != "from-file" {
		t.Fatalf("expected value from file got %q", got)
	}
}
