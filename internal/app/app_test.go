package app

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr == "" {
		t.Error("HTTPAddr should not be empty")
	}
	if cfg.MetricsAddr == "" {
		t.Error("MetricsAddr should not be empty")
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected memory storage by default, got %s", cfg.StorageDriver)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{
		HTTPAddr:    ":8081",
		MetricsAddr: ":9091",
	}

	if cfg.HTTPAddr != ":8081" {
		t.Errorf("expected HTTPAddr :8081, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9091" {
		t.Errorf("expected MetricsAddr :9091, got %s", cfg.MetricsAddr)
	}
}
