// Package watch ingests deformation feature files dropped into an inbox
// directory and triggers a re-evaluation once the inbox goes quiet.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/otel"
	"github.com/abelbrown/iasi/internal/timeline"
)

// ProcessedDir is the inbox subdirectory ingested files are moved to.
const ProcessedDir = "processed"

// DefaultDebounce is how long the inbox must stay quiet before a scan.
const DefaultDebounce = 2 * time.Second

// Ingested describes one inbox file merged into a feature file.
type Ingested struct {
	Source   string // original inbox path
	Dest     string // path under processed/
	Features string // feature file the rows were merged into
	Rows     int    // rows in the feature file after the merge
}

// Trigger runs after a scan ingested at least one file.
type Trigger func(ctx context.Context, files []Ingested) error

// Watcher moves <stem>.csv from the inbox into processed/ after merging its
// rows into <features>/features_<stem>.csv.
type Watcher struct {
	inbox       string
	featuresDir string
	debounce    time.Duration
	trigger     Trigger
	events      *otel.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a scan.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithEvents emits a watch.file event per ingested file.
func WithEvents(l *otel.Logger) Option { return func(w *Watcher) { w.events = l } }

// New creates a watcher. trigger may be nil.
func New(inbox, featuresDir string, trigger Trigger, opts ...Option) *Watcher {
	w := &Watcher{
		inbox:       inbox,
		featuresDir: featuresDir,
		debounce:    DefaultDebounce,
		trigger:     trigger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FeaturesPath is the feature file an inbox file named stem.csv merges into.
func (w *Watcher) FeaturesPath(stem string) string {
	return filepath.Join(w.featuresDir, "features_"+stem+".csv")
}

// Scan ingests every *.csv currently in the inbox, in name order. A file that
// fails to merge is left in place and reported; the others are still
// processed.
func (w *Watcher) Scan() ([]Ingested, error) {
	matches, err := filepath.Glob(filepath.Join(w.inbox, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	processed := filepath.Join(w.inbox, ProcessedDir)
	if len(matches) > 0 {
		if err := os.MkdirAll(processed, 0o755); err != nil {
			return nil, err
		}
	}

	var done []Ingested
	var errs []error
	for _, src := range matches {
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		in := Ingested{Source: src, Features: w.FeaturesPath(stem), Dest: filepath.Join(processed, filepath.Base(src))}
		if in.Rows, err = timeline.MergeFeatures(in.Features, src); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(src), err))
			logging.Warn("Inbox file rejected", "file", src, "error", err)
			continue
		}
		if err := os.Rename(src, in.Dest); err != nil {
			errs = append(errs, fmt.Errorf("move %s: %w", filepath.Base(src), err))
			continue
		}
		w.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindWatchFile, Comp: "watch",
			Path: in.Dest, Count: in.Rows})
		logging.Info("Inbox file ingested", "file", filepath.Base(src), "features", in.Features, "rows", in.Rows)
		done = append(done, in)
	}
	return done, errors.Join(errs...)
}

func (w *Watcher) scanAndTrigger(ctx context.Context) {
	files, err := w.Scan()
	if err != nil {
		w.events.Error(otel.KindError, "watch", err)
	}
	if len(files) == 0 || w.trigger == nil {
		return
	}
	if err := w.trigger(ctx, files); err != nil {
		w.events.Error(otel.KindError, "watch", err)
		logging.Error("Re-evaluation failed", "error", err)
	}
}

// Run processes files already in the inbox, then watches it until ctx is
// done. Bursts of create and write events are coalesced into one scan.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.inbox, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.inbox); err != nil {
		return fmt.Errorf("watch %s: %w", w.inbox, err)
	}
	logging.Info("Watching inbox", "dir", w.inbox, "debounce", w.debounce)

	w.scanAndTrigger(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".csv" || filepath.Dir(ev.Name) != filepath.Clean(w.inbox) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("Inbox event", "op", ev.Op.String(), "file", ev.Name)
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.events.Error(otel.KindError, "watch", err)
			logging.Warn("Watcher error", "error", err)
		case <-timer.C:
			w.scanAndTrigger(ctx)
		}
	}
}
