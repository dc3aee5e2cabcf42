package utils

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("ENERGY_TICK", "30m")
	t.Setenv("ACTION_RATE", "not-a-number")

	cfg := LoadConfig()
	if cfg.DBDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %s", cfg.DBDriver)
	}
	if cfg.EnergyTick != 30*time.Minute {
		t.Fatalf("expected 30m tick, got %v", cfg.EnergyTick)
	}
	if !cfg.RunScheduler {
		t.Fatalf("expected scheduler enabled by default")
	}
	if cfg.ActionRate != 2 {
		t.Fatalf("expected fallback action rate 2, got %d", cfg.ActionRate)
	}
}

func TestLoadConfigDeployedPort(t *testing.T) {
	t.Setenv("DEPLOYED", "1")

	if cfg := LoadConfig(); cfg.Port != "8080" {
		t.Fatalf("expected deployed port 8080, got %s", cfg.Port)
	}
}
