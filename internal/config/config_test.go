package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/eventd_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Errorf("expected development mode by default")
	}
	if cfg.EventWorkers != 4 {
		t.Errorf("EventWorkers = %d, want 4", cfg.EventWorkers)
	}
	if cfg.EventStaleAfter != 5*time.Minute {
		t.Errorf("EventStaleAfter = %s, want 5m", cfg.EventStaleAfter)
	}
	if cfg.WebhookTimeout != 10*time.Second {
		t.Errorf("WebhookTimeout = %s, want 10s", cfg.WebhookTimeout)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestValidateProductionRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/eventd_test")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail without AUTH_SECRET in production")
	}

	cfg.AuthSecret = "supersecret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateQueueTunables(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/eventd_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.EventWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for EVENT_WORKERS=0")
	}

	cfg.EventWorkers = 4
	cfg.EventBackoffBase = 2 * time.Minute
	cfg.EventBackoffMax = time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when backoff base exceeds max")
	}
}
