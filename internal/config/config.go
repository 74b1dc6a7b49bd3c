// Package config loads the YAML configuration: fusion weights and bands,
// evaluation settings, the USGS client and the batch event list.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/index"
)

// Environment overrides.
const (
	EnvDataDir      = "IASI_DATA_DIR"
	EnvConfig       = "IASI_CONFIG"
	EnvMinMagnitude = "IASI_MIN_MAGNITUDE"
)

// Config is the persistent application configuration.
type Config struct {
	DataDir     string `yaml:"data_dir" validate:"required"`
	SignalsDir  string `yaml:"signals_dir" validate:"required"`
	CatalogsDir string `yaml:"catalogs_dir" validate:"required"`
	OutputsDir  string `yaml:"outputs_dir" validate:"required"`
	InboxDir    string `yaml:"inbox_dir" validate:"required"`
	FeaturesDir string `yaml:"features_dir" validate:"required"`

	// Weights are keyed by channel code, name or legacy greek key.
	Weights     map[string]float64 `yaml:"weights" validate:"required,len=5,dive,gte=0,lte=1"`
	Bands       []index.Band       `yaml:"bands" validate:"required,min=1"`
	TrendWindow int                `yaml:"trend_window" validate:"gte=2,lte=365"`

	Evaluation EvaluationConfig `yaml:"evaluation"`
	USGS       USGSConfig       `yaml:"usgs"`
	Events     []EventConfig    `yaml:"events" validate:"dive"`
}

// EvaluationConfig holds the retrospective evaluation settings.
type EvaluationConfig struct {
	Windows      []int      `yaml:"windows" validate:"required,min=1,dive,gt=0,lte=365"`
	MinMagnitude float64    `yaml:"min_magnitude" validate:"gte=0,lte=10"`
	Grid         GridConfig `yaml:"grid"`
	Concurrency  int        `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// GridConfig is the F1 threshold search grid.
type GridConfig struct {
	Start float64 `yaml:"start" validate:"gte=0,lte=1"`
	Stop  float64 `yaml:"stop" validate:"gtefield=Start,lte=1"`
	Step  float64 `yaml:"step" validate:"gt=0,lte=1"`
}

// USGSConfig configures the catalog fetcher.
type USGSConfig struct {
	Endpoint          string  `yaml:"endpoint" validate:"omitempty,url"`
	RadiusKM          float64 `yaml:"radius_km" validate:"gte=0,lte=20000"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0,lte=20"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gte=1,lte=600"`
}

// EventConfig is one historical event evaluated by the batch.
type EventConfig struct {
	Name      string  `yaml:"name" validate:"required,excludesall=/\\"`
	Features  string  `yaml:"features" validate:"required"`
	Catalog   string  `yaml:"catalog"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
}

// DefaultDataDir is ~/.iasi.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".iasi")
}

// DefaultConfig returns the built-in configuration rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:     dataDir,
		SignalsDir:  "signals",
		CatalogsDir: "catalogs",
		OutputsDir:  "outputs",
		InboxDir:    "inbox",
		FeaturesDir: "features",
		Weights:     index.DefaultWeights.Map(),
		Bands:       append([]index.Band(nil), index.DefaultBands...),
		TrendWindow: index.DefaultTrendWindow,
		Evaluation: EvaluationConfig{
			Windows:      append([]int(nil), eval.DefaultWindows...),
			MinMagnitude: eval.DefaultMinMagnitude,
			Grid:         GridConfig{Start: 0.65, Stop: 0.80, Step: 0.01},
			Concurrency:  4,
		},
		USGS: USGSConfig{
			Endpoint:          catalog.DefaultEndpoint,
			RadiusKM:          300,
			RequestsPerSecond: 1,
			TimeoutSeconds:    30,
		},
		Events: []EventConfig{
			{Name: "Valdivia_1960", Features: "features/features_valdivia1960.csv", Latitude: -39.8, Longitude: -73.2},
			{Name: "Maule_2010", Features: "features/features_maule2010.csv", Latitude: -35.0, Longitude: -72.5},
			{Name: "Illapel_2015", Features: "features/features_illapel2015.csv", Latitude: -31.6, Longitude: -71.2},
			{Name: "EC_CO_1906", Features: "features/features_ec_co_1906.csv", Latitude: 1.0, Longitude: -80.0},
		},
	}
}

// Path returns $IASI_CONFIG or <dataDir>/config.yaml.
func Path(dataDir string) string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(dataDir, "config.yaml")
}

// Load reads the config at path on top of the defaults for dataDir, applies
// environment overrides and validates the result. A missing file yields the
// defaults.
func Load(path, dataDir string) (*Config, error) {
	cfg := DefaultConfig(dataDir)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		// yaml.v3 merges into existing maps; a file that sets weights
		// replaces the defaults instead of adding to them.
		var probe struct {
			Weights map[string]float64 `yaml:"weights"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if probe.Weights != nil {
			cfg.Weights = nil
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if cfg.DataDir == "" {
			cfg.DataDir = dataDir
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvMinMagnitude); v != "" {
		m, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMinMagnitude, err)
		}
		c.Evaluation.MinMagnitude = m
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and then the weight and band
// invariants of the index engine.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.WeightSet(); err != nil {
		return err
	}
	if _, err := index.NewBands(c.Bands); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Events))
	for _, ev := range c.Events {
		if seen[ev.Name] {
			return fmt.Errorf("invalid config: duplicate event %q", ev.Name)
		}
		seen[ev.Name] = true
	}
	return nil
}

// WeightSet returns the validated weights.
func (c *Config) WeightSet() (index.WeightSet, error) {
	return index.NewWeightSet(c.Weights)
}

// Engine builds an index engine from the configured weights and bands.
func (c *Config) Engine(opts ...index.Option) (*index.Engine, error) {
	ws, err := c.WeightSet()
	if err != nil {
		return nil, err
	}
	return index.NewEngine(ws, c.Bands, opts...)
}

// Evaluator builds the evaluator from the evaluation section.
func (c *Config) Evaluator() eval.Evaluator {
	g := c.Evaluation.Grid
	mag := c.Evaluation.MinMagnitude
	return eval.Evaluator{
		MinMagnitude: &mag,
		Grid:         eval.Grid(g.Start, g.Stop, g.Step),
	}
}

// Resolve makes p absolute against the data directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// CatalogPath returns the catalog file for ev, defaulting to
// <catalogs_dir>/<name>.csv.
func (c *Config) CatalogPath(ev EventConfig) string {
	if ev.Catalog != "" {
		return c.Resolve(ev.Catalog)
	}
	return filepath.Join(c.Resolve(c.CatalogsDir), ev.Name+".csv")
}

// Event returns the configured event called name.
func (c *Config) Event(name string) (EventConfig, bool) {
	for _, ev := range c.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return EventConfig{}, false
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
