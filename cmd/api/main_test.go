package main

import (
	"strings"
	"testing"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/logging"
)

func TestRunReturnsSetupErrors(t *testing.T) {
	cfg := config.Config{AppName: "Custody", AppEnv: "production", EventSink: config.SinkLog}

	err := run(cfg, logging.Discard())
	if err == nil {
		t.Fatalf("expected error without stores outside development")
	}
	if !strings.Contains(err.Error(), "build server") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRunRejectsUnknownSink(t *testing.T) {
	cfg := config.Config{AppName: "Custody", AppEnv: "development", EventSink: "smtp"}

	if err := run(cfg, logging.Discard()); err == nil || !strings.Contains(err.Error(), "event publisher") {
		t.Fatalf("expected publisher error got %v", err)
	}
}
