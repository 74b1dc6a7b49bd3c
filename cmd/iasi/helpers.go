package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/abelbrown/iasi/internal/config"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/otel"
	"github.com/abelbrown/iasi/internal/store"
)

// DBName is the SQLite file under the data directory.
const DBName = "iasi.db"

// EnvE2E marks a run driven by the end-to-end tests.
const EnvE2E = "IASI_E2E"

// env is what every subcommand needs: configuration, the log file and the
// run event log.
type env struct {
	cfg    *config.Config
	events *otel.Logger
}

// dataDir returns $IASI_DATA_DIR or ~/.iasi.
func dataDir() string {
	if d := os.Getenv(config.EnvDataDir); d != "" {
		return d
	}
	return config.DefaultDataDir()
}

// setup creates the data directory, opens the logs and loads the config.
func setup(comp string) (*env, error) {
	dir := dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := logging.Init(dir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.Path(dir), dir)
	if err != nil {
		logging.Close()
		return nil, err
	}
	events, err := otel.Open(cfg.DataDir)
	if err != nil {
		logging.Warn("Event log unavailable", "error", err)
		events = otel.NewNullLogger()
	}
	events.Info(otel.KindStartup, comp, logging.Version)
	return &env{cfg: cfg, events: events}, nil
}

func (e *env) close(comp string) {
	e.events.Info(otel.KindShutdown, comp, "")
	e.events.Close()
	logging.Close()
}

// dbPath returns the path to iasi.db.
func (e *env) dbPath() string {
	return filepath.Join(e.cfg.DataDir, DBName)
}

func (e *env) openDB() (*store.Store, error) {
	st, err := store.Open(e.dbPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseWindows parses "7,14,30".
func parseWindows(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid window %q", part)
		}
		out = append(out, w)
	}
	return out, nil
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
