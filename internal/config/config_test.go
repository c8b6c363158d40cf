package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("RECONCILE_INTERVAL", "")
	t.Setenv("WEBHOOK_ENFORCE_IP_ALLOWLIST", "")

	cfg := Load()
	if cfg.Scheduler.ReconcileInterval != 15*time.Minute {
		t.Fatalf("expected 15m reconcile interval, got %s", cfg.Scheduler.ReconcileInterval)
	}
	if cfg.Webhook.EnforceIPAllowlist {
		t.Fatalf("expected allow-list enforcement off outside production")
	}
}

func TestLoadProductionEnforcesAllowlist(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("WEBHOOK_ENFORCE_IP_ALLOWLIST", "false")

	cfg := Load()
	if !cfg.Webhook.EnforceIPAllowlist {
		t.Fatalf("expected allow-list enforcement in production")
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production mode")
	}
}

func TestGetenvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INTERVAL", "soon")
	if got := getenvDuration("SOME_INTERVAL", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "")
	if cfg := Load(); cfg.TrustedProxies != nil {
		t.Fatalf("expected no trusted proxies by default, got %v", cfg.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,192.168.1.1 ")
	cfg := Load()
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" || cfg.TrustedProxies[1] != "192.168.1.1" {
		t.Fatalf("unexpected trusted proxies %v", cfg.TrustedProxies)
	}
}
