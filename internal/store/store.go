// Package store provides SQLite persistence for index records, timelines,
// catalogs, evaluation reports and alerts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/iasi/internal/alert"
	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/timeline"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_records (
		id TEXT PRIMARY KEY,
		value REAL NOT NULL,
		label TEXT NOT NULL,
		contributions TEXT NOT NULL,
		weights TEXT NOT NULL,
		bands TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_created ON index_records(created_at);

	CREATE TABLE IF NOT EXISTS timeline_points (
		event TEXT NOT NULL,
		date TEXT NOT NULL,
		a REAL, r REAL, d REAL, m REAL, s REAL,
		score REAL NOT NULL,
		band TEXT,
		PRIMARY KEY (event, date)
	);

	CREATE TABLE IF NOT EXISTS catalog_events (
		catalog TEXT NOT NULL,
		event_id TEXT,
		date TEXT NOT NULL,
		mw REAL NOT NULL,
		lat REAL, lon REAL, depth REAL,
		place TEXT,
		UNIQUE (catalog, date, mw, lat, lon)
	);
	CREATE INDEX IF NOT EXISTS idx_catalog_date ON catalog_events(catalog, date);

	CREATE TABLE IF NOT EXISTS metrics_reports (
		run_id TEXT NOT NULL,
		event TEXT NOT NULL,
		window_days INTEGER NOT NULL,
		auc_pr REAL, f1 REAL, best_threshold REAL,
		false_alarm_pm REAL, lead_time_days REAL, brier REAL,
		n INTEGER, positives INTEGER,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, event, window_days)
	);
	CREATE INDEX IF NOT EXISTS idx_reports_event ON metrics_reports(event, created_at DESC);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		record_id TEXT,
		value REAL NOT NULL,
		band TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRecords stores index records, returning how many were new.
// Records are keyed by ID; re-saving one is a no-op.
func (s *Store) SaveRecords(ctx context.Context, recs []index.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(recs) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT OR IGNORE INTO index_records (
			id, value, label, contributions, weights, bands, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, r := range recs {
		contrib, err := json.Marshal(r.Contributions)
		if err != nil {
			return newCount, fmt.Errorf("encode contributions: %w", err)
		}
		weights, err := json.Marshal(r.Weights)
		if err != nil {
			return newCount, fmt.Errorf("encode weights: %w", err)
		}
		bands, err := json.Marshal(r.Bands)
		if err != nil {
			return newCount, fmt.Errorf("encode bands: %w", err)
		}
		result, err := stmt.ExecContext(ctx, r.ID, r.Value, r.Label,
			string(contrib), string(weights), string(bands), r.Timestamp.UTC())
		if err != nil {
			return newCount, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}
	return newCount, nil
}

// Records returns the most recent limit index records, oldest first
// (all when limit <= 0).
func (s *Store) Records(ctx context.Context, limit int) ([]index.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, label, contributions, weights, bands, created_at
		FROM index_records
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []index.Record
	for rows.Next() {
		var r index.Record
		var contrib, weights, bands string
		if err := rows.Scan(&r.ID, &r.Value, &r.Label, &contrib, &weights, &bands, &r.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contrib), &r.Contributions); err != nil {
			return nil, fmt.Errorf("decode contributions of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(weights), &r.Weights); err != nil {
			return nil, fmt.Errorf("decode weights of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(bands), &r.Bands); err != nil {
			return nil, fmt.Errorf("decode bands of %s: %w", r.ID, err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(recs)
	return recs, nil
}

// SaveTimeline replaces the stored timeline of event with points.
func (s *Store) SaveTimeline(ctx context.Context, event string, points []timeline.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM timeline_points WHERE event = ?", event); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timeline_points (event, date, a, r, d, m, s, score, band)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		c := p.Channels
		if _, err := stmt.ExecContext(ctx, event, csvio.FormatDate(p.Date),
			c[0], c[1], c[2], c[3], c[4], p.Score, p.Band); err != nil {
			return fmt.Errorf("insert %s %s: %w", event, csvio.FormatDate(p.Date), err)
		}
	}
	return tx.Commit()
}

// Timeline returns the stored timeline of event in date order.
func (s *Store) Timeline(ctx context.Context, event string) ([]timeline.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, a, r, d, m, s, score, COALESCE(band, '')
		FROM timeline_points WHERE event = ? ORDER BY date
	`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []timeline.Point
	for rows.Next() {
		var p timeline.Point
		var date string
		c := &p.Channels
		if err := rows.Scan(&date, &c[0], &c[1], &c[2], &c[3], &c[4], &p.Score, &p.Band); err != nil {
			return nil, err
		}
		if p.Date, err = csvio.ParseDate(date); err != nil {
			return nil, fmt.Errorf("timeline %s: %w", event, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// SaveCatalog stores events under the catalog name, returning how many were
// new. An event already present with the same date, magnitude and position is
// ignored.
func (s *Store) SaveCatalog(ctx context.Context, name string, events []catalog.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT OR IGNORE INTO catalog_events (catalog, event_id, date, mw, lat, lon, depth, place)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, e := range events {
		result, err := stmt.ExecContext(ctx, name, e.ID, csvio.FormatDate(e.Date),
			e.Magnitude, e.Latitude, e.Longitude, e.DepthKM, e.Place)
		if err != nil {
			return newCount, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}
	return newCount, nil
}

// Catalog returns the events stored under name, sorted by date.
func (s *Store) Catalog(ctx context.Context, name string) ([]catalog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(event_id, ''), date, mw, lat, lon, depth, COALESCE(place, '')
		FROM catalog_events WHERE catalog = ? ORDER BY date, rowid
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []catalog.Event
	for rows.Next() {
		var e catalog.Event
		var date string
		if err := rows.Scan(&e.ID, &date, &e.Magnitude, &e.Latitude, &e.Longitude, &e.DepthKM, &e.Place); err != nil {
			return nil, err
		}
		if e.Date, err = csvio.ParseDate(date); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// SaveReports stores the reports of one evaluation run of event.
func (s *Store) SaveReports(ctx context.Context, runID, event string, reports []eval.Report, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO metrics_reports (
			run_id, event, window_days, auc_pr, f1, best_threshold,
			false_alarm_pm, lead_time_days, brier, n, positives, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reports {
		if _, err := stmt.ExecContext(ctx, runID, event, r.WindowDays, r.AUCPR, r.F1,
			r.BestThreshold, r.FalseAlarmPM, r.LeadTimeDays, r.Brier, r.Days, r.Positives, at.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestReports returns the reports of the most recent run that evaluated
// event, ordered by window. No run yields nil.
func (s *Store) LatestReports(ctx context.Context, event string) ([]eval.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT window_days, auc_pr, f1, best_threshold, false_alarm_pm,
			lead_time_days, brier, n, positives
		FROM metrics_reports
		WHERE event = ? AND run_id = (
			SELECT run_id FROM metrics_reports WHERE event = ?
			ORDER BY created_at DESC, rowid DESC LIMIT 1
		)
		ORDER BY window_days
	`, event, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []eval.Report
	for rows.Next() {
		var r eval.Report
		if err := rows.Scan(&r.WindowDays, &r.AUCPR, &r.F1, &r.BestThreshold, &r.FalseAlarmPM,
			&r.LeadTimeDays, &r.Brier, &r.Days, &r.Positives); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// EvaluatedEvents lists every event with at least one stored report.
func (s *Store) EvaluatedEvents(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT event FROM metrics_reports ORDER BY event")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SaveAlert stores one alert. The full alert is kept as JSON.
func (s *Store) SaveAlert(ctx context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (id, record_id, value, band, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.RecordID, a.IndexValue, a.Band, string(body), a.Timestamp.UTC())
	return err
}

// Alerts returns the most recent limit alerts, oldest first, optionally
// filtered by band (all when limit <= 0).
func (s *Store) Alerts(ctx context.Context, limit int, band string) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM alerts
		WHERE ? = '' OR band = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, band, band, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var a alert.Alert
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(alerts)
	return alerts, nil
}
