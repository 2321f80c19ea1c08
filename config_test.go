package quakescan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate, got %v", err)
	}
}

func TestConfigValidateRejectsInvertedBandpass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PBandpass.HighCorner = cfg.PBandpass.LowCorner
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for inverted bandpass corners")
	}
}

func TestConfigValidateRejectsRepeatBelowMarginal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumRepeat = cfg.MarginalWindow - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for minimum_repeat < marginal_window")
	}
}

func TestConfigValidateRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PickThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for pick_threshold out of [0,1]")
	}

	cfg = DefaultConfig()
	cfg.PercentTT = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for percent_tt out of [0,1]")
	}
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	partial, err := json.Marshal(map[string]any{"detection_threshold": 6.0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, partial, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DetectionThreshold != 6.0 {
		t.Errorf("DetectionThreshold = %v, want 6.0", cfg.DetectionThreshold)
	}
	if cfg.SamplingRate != DefaultConfig().SamplingRate {
		t.Errorf("SamplingRate = %v, want default %v", cfg.SamplingRate, DefaultConfig().SamplingRate)
	}
}
