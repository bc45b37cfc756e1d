package main

import (
	"testing"

	"github.com/tjfontaine/itsm-client/internal/config"
)

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"status=open", "q=a=b"})
	if err != nil {
		t.Fatalf("parsePairs() error = %v", err)
	}
	if got["status"] != "open" || got["q"] != "a=b" {
		t.Errorf("parsePairs() = %v", got)
	}

	if _, err := parsePairs([]string{"novalue"}); err == nil {
		t.Error("parsePairs() should reject a pair without '='")
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "memory"}}
	err := applyGlobalFlags(cfg, globalFlags{
		baseURL:   "http://localhost:8090",
		sessionDB: "/tmp/itsmctl-test.db",
		trace:     true,
	})
	if err != nil {
		t.Fatalf("applyGlobalFlags() error = %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8090" {
		t.Errorf("base URL = %q", cfg.API.BaseURL)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/itsmctl-test.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry not enabled by --trace")
	}
}
