package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Endpoint != "/tmp/eee_AutoViewer" {
		t.Errorf("expected default endpoint, got %s", cfg.Endpoint)
	}
	if cfg.AwaitTimeout != time.Second {
		t.Errorf("expected 1s await timeout, got %s", cfg.AwaitTimeout)
	}
	if cfg.ResetSettleUpdates != 0 {
		t.Error("settle count should default to the task's own value")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown task", func(c *Config) { c.Task = "hover" }},
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"zero await timeout", func(c *Config) { c.AwaitTimeout = 0 }},
		{"negative settle", func(c *Config) { c.ResetSettleUpdates = -1 }},
		{"zero rate", func(c *Config) { c.StepsPerSecond = 0 }},
		{"zero episodes", func(c *Config) { c.Episodes = 0 }},
		{"zero frame limit", func(c *Config) { c.MaxFrameBytes = 0 }},
		{"bad episode without window", func(c *Config) {
			c.BadEpisode.Enabled = true
			c.BadEpisode.Window = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simbridge.yaml")

	cfg := DefaultConfig()
	cfg.Task = "speed"
	cfg.AwaitTimeout = 1500 * time.Millisecond
	cfg.ResetSettleUpdates = 4
	cfg.Influx.URL = "http://localhost:8086"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Task != "speed" || loaded.ResetSettleUpdates != 4 {
		t.Errorf("unexpected round trip: %+v", loaded)
	}
	if loaded.AwaitTimeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %s", loaded.AwaitTimeout)
	}
	if !loaded.Influx.Enabled() {
		t.Error("influx should be enabled")
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("task: speed\nawait_timeout: 250ms\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AwaitTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.AwaitTimeout)
	}
	if cfg.Endpoint != DefaultEndpoint || cfg.StepsPerSecond != DefaultStepsPerSecond {
		t.Error("unset fields should keep defaults")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("glide_angle", "pid")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Controller != "pid" || cfg.ControllerParams.Target != -6 {
		t.Errorf("unexpected preset: %+v", cfg.ControllerParams)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("preset should validate: %v", err)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("glide_angle", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "random")
	if cfg != nil {
		t.Error("expected nil for nonexistent task")
	}
}

func TestListPresets(t *testing.T) {
	for task := range Presets {
		if len(ListPresets(task)) == 0 {
			t.Errorf("expected presets for %s", task)
		}
		for _, name := range ListPresets(task) {
			if err := GetPreset(task, name).Validate(); err != nil {
				t.Errorf("%s/%s: %v", task, name, err)
			}
		}
	}

	if ListPresets("nonexistent") != nil {
		t.Error("expected nil for nonexistent task")
	}
}

func TestControllerSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ControllerParams.Index = 3
	p := cfg.ControllerSettings()
	if p.Index != 3 || p.Kp != cfg.ControllerParams.Kp {
		t.Errorf("unexpected params %+v", p)
	}
}
