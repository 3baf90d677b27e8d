package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_DURABLE_BACKEND", "")
	t.Setenv("SESSION_SWEEP_INTERVAL_SECONDS", "")
	t.Setenv("API_BASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.DurableBackend != BackendRedis {
		t.Errorf("DurableBackend = %q, want %q", cfg.Session.DurableBackend, BackendRedis)
	}
	if cfg.Session.SweepInterval() != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.Session.SweepInterval())
	}
	if cfg.Session.KeyPrefix != "freight:" {
		t.Errorf("KeyPrefix = %q, want freight:", cfg.Session.KeyPrefix)
	}
	if cfg.Session.LoginRoute != "/login" || cfg.Session.AdminLoginRoute != "/admin/login" {
		t.Errorf("login routes = %q, %q", cfg.Session.LoginRoute, cfg.Session.AdminLoginRoute)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:8080" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("SESSION_DURABLE_BACKEND", "Postgres")
	t.Setenv("SESSION_SWEEP_INTERVAL_SECONDS", "60")
	t.Setenv("API_BASE_URL", "https://api.freight.example/")
	t.Setenv("APP_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.DurableBackend != BackendPostgres {
		t.Errorf("DurableBackend = %q, want %q", cfg.Session.DurableBackend, BackendPostgres)
	}
	if cfg.Session.SweepInterval() != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.Session.SweepInterval())
	}
	if cfg.API.BaseURL != "https://api.freight.example" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
	if cfg.App.Addr() != "127.0.0.1:9999" {
		t.Errorf("Addr = %q", cfg.App.Addr())
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("SESSION_DURABLE_BACKEND", "cookie-jar")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("SESSION_DURABLE_BACKEND", "")
	t.Setenv("REDIS_DB", "zero")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric REDIS_DB")
	}
}
