package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/signal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.yaml"), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ws, err := cfg.WeightSet()
	if err != nil {
		t.Fatal(err)
	}
	if ws != index.DefaultWeights {
		t.Errorf("weights = %v, want defaults", ws)
	}
	if cfg.Evaluation.MinMagnitude != 6.5 || len(cfg.Events) != 4 {
		t.Errorf("unexpected defaults: %+v", cfg.Evaluation)
	}
	if g := cfg.Evaluator().Grid; len(g) != 16 || g[0] != 0.65 {
		t.Errorf("default grid = %v", g)
	}
}

func TestLoadGreekWeights(t *testing.T) {
	path := writeConfig(t, `
weights:
  alpha: 0.25
  beta: 0.20
  gamma: 0.25
  delta: 0.15
  epsilon: 0.15
evaluation:
  windows: [7, 30]
  min_magnitude: 7.0
  grid: {start: 0.5, stop: 0.8, step: 0.05}
  concurrency: 2
`)
	cfg, err := Load(path, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ws, _ := cfg.WeightSet()
	if ws[signal.Animals] != 0.25 || ws[signal.Deformation] != 0.25 {
		t.Errorf("weights = %v", ws)
	}
	if len(cfg.Evaluation.Windows) != 2 || *cfg.Evaluator().MinMagnitude != 7 {
		t.Errorf("evaluation = %+v", cfg.Evaluation)
	}
	if len(cfg.Evaluator().Grid) != 7 {
		t.Errorf("grid = %v", cfg.Evaluator().Grid)
	}
	// sections not in the file keep their defaults
	if cfg.USGS.RequestsPerSecond != 1 {
		t.Errorf("usgs defaults lost: %+v", cfg.USGS)
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := writeConfig(t, `
weights: {A: 0.5, R: 0.5, D: 0.5, M: 0.0, S: 0.0}
`)
	_, err := Load(path, t.TempDir())
	var ce *index.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoadRejectsBadBands(t *testing.T) {
	path := writeConfig(t, `
bands:
  - {label: LOW, lower: 0, upper: 0.5}
  - {label: HIGH, lower: 0.6, upper: 1}
`)
	if _, err := Load(path, t.TempDir()); err == nil {
		t.Error("expected error for bands with a gap")
	}
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no windows", func(c *Config) { c.Evaluation.Windows = nil }, "Windows"},
		{"negative window", func(c *Config) { c.Evaluation.Windows = []int{-7} }, "Windows[0]"},
		{"bad latitude", func(c *Config) { c.Events[0].Latitude = 120 }, "Latitude"},
		{"unnamed event", func(c *Config) { c.Events[1].Name = "" }, "Name"},
		{"inverted grid", func(c *Config) { c.Evaluation.Grid.Stop = 0.1 }, "Stop"},
		{"bad endpoint", func(c *Config) { c.USGS.Endpoint = "not a url" }, "Endpoint"},
		{"four weights", func(c *Config) { delete(c.Weights, "S") }, "Weights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestZeroMinMagnitudeCountsEveryEvent(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Evaluation.MinMagnitude = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("min_magnitude 0 should be valid: %v", err)
	}
	if m := cfg.Evaluator().MinMagnitude; m == nil || *m != 0 {
		t.Errorf("Evaluator().MinMagnitude = %v, want explicit 0", m)
	}
	cfg.Evaluation.MinMagnitude = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative min_magnitude should be rejected")
	}
}

func TestDuplicateEvents(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Events = append(cfg.Events, cfg.Events[0])
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate event names")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvMinMagnitude, "7.5")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), "/unused")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != dir || cfg.Evaluation.MinMagnitude != 7.5 {
		t.Errorf("env overrides not applied: dir=%s mag=%v", cfg.DataDir, cfg.Evaluation.MinMagnitude)
	}

	t.Setenv(EnvMinMagnitude, "seven")
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml"), dir); err == nil {
		t.Error("expected error for a non-numeric magnitude")
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/iasi.yaml")
	if got := Path("/data"); got != "/etc/iasi.yaml" {
		t.Errorf("Path = %s", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.TrendWindow = 14
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if back.TrendWindow != 14 || len(back.Bands) != 4 {
		t.Errorf("round trip lost fields: %+v", back)
	}
}

func TestResolveAndCatalogPath(t *testing.T) {
	cfg := DefaultConfig("/data")
	if got := cfg.Resolve("signals"); got != filepath.Join("/data", "signals") {
		t.Errorf("Resolve = %s", got)
	}
	if got := cfg.Resolve("/abs/x.csv"); got != "/abs/x.csv" {
		t.Errorf("absolute paths must be kept, got %s", got)
	}
	ev, ok := cfg.Event("Maule_2010")
	if !ok {
		t.Fatal("Maule_2010 should be a default event")
	}
	if got := cfg.CatalogPath(ev); got != filepath.Join("/data", "catalogs", "Maule_2010.csv") {
		t.Errorf("CatalogPath = %s", got)
	}
}
