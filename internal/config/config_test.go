package config

import (
	"os"
	"testing"
	"time"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ADMIN_PIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.AdminPIN != "" {
		t.Fatalf("expected empty ADMIN_PIN when unset, got %q", cfg.AdminPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.VenueID != "main-venue" || cfg.AdminName != "admin" {
		t.Fatalf("unexpected venue defaults %+v", cfg)
	}
	if cfg.StatsCacheTTL() != 30*time.Second || cfg.AccessTokenTTL() != 12*time.Hour {
		t.Fatalf("unexpected ttl defaults %v %v", cfg.StatsCacheTTL(), cfg.AccessTokenTTL())
	}
	if !cfg.PrometheusEnabled || cfg.Production() {
		t.Fatalf("unexpected flags %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("VENUE_ID", "club-norte")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "0")
	t.Setenv("PROMETHEUS_ENABLED", "false")
	t.Setenv("ADMIN_PIN", " 482913 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || !cfg.Production() || cfg.RedisDB != 3 || cfg.VenueID != "club-norte" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.StatsCacheTTLSeconds != 30 {
		t.Fatalf("expected non-positive ttl to fall back to 30, got %d", cfg.StatsCacheTTLSeconds)
	}
	if cfg.PrometheusEnabled {
		t.Fatalf("expected metrics disabled")
	}
	if cfg.AdminPIN != "482913" {
		t.Fatalf("expected trimmed PIN, got %q", cfg.AdminPIN)
	}
}
