package config

import (
	"testing"
	"time"

	"github.com/congo-pay/custody/internal/units"
)

var configKeys = []string{
	"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
	"SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", "IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL",
	"EVENT_SINK", "EVENT_STREAM", "KAFKA_SERVERS", "OWNER_ONLY_SENDS", "FAUCET_MAX", "FAUCET_PER_MINUTE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "Custody" || cfg.Address() != ":8080" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected development by default")
	}
	if cfg.ShutdownPeriod != 10*time.Second || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected durations %s %s", cfg.ShutdownPeriod, cfg.IdempotencyTTL)
	}
	if cfg.EventSink != SinkLog || cfg.EventStream != "stream:wallet" {
		t.Fatalf("unexpected event settings %q %q", cfg.EventSink, cfg.EventStream)
	}
	if cfg.OwnerOnlySends {
		t.Fatalf("owner-only sends must default to off")
	}
	if !cfg.FaucetMax.Eq(units.MustParseEther("100")) || cfg.FaucetPerMinute != 5 {
		t.Fatalf("unexpected faucet settings %s %d", cfg.FaucetMax.Dec(), cfg.FaucetPerMinute)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("OWNER_ONLY_SENDS", "true")
	t.Setenv("FAUCET_MAX", "5 gwei")
	t.Setenv("EVENT_SINK", "Kafka")
	t.Setenv("KAFKA_SERVERS", "localhost:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" || cfg.ShutdownPeriod != 3*time.Second || cfg.IdempotencyTTL != time.Minute {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if !cfg.OwnerOnlySends || cfg.EventSink != SinkKafka {
		t.Fatalf("unexpected flags %+v", cfg)
	}
	if cfg.FaucetMax.Uint64() != 5*units.Gwei {
		t.Fatalf("unexpected faucet max %s", cfg.FaucetMax.Dec())
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"production without database": {"APP_ENV": "production", "REDIS_URL": "redis://localhost:6379"},
		"production without redis":    {"APP_ENV": "production", "DATABASE_URL": "postgres://localhost/custody"},
		"kafka without servers":       {"EVENT_SINK": "kafka"},
		"redis sink without redis":    {"EVENT_SINK": "redis"},
		"unknown sink":                {"EVENT_SINK": "smtp"},
		"bad owner flag":              {"OWNER_ONLY_SENDS": "maybe"},
		"bad faucet max":              {"FAUCET_MAX": "-1"},
		"bad shutdown":                {"SHUTDOWN_TIMEOUT_SECONDS": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
