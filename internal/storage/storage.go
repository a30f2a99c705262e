package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"simdash/internal/imagestats"
	"simdash/internal/registry"
)

// Store wraps SQLite-backed history of computed run statistics.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
            id TEXT PRIMARY KEY,
            root TEXT NOT NULL,
            started_at TIMESTAMP NOT NULL,
            duration_ms INTEGER,
            runs_loaded INTEGER,
            runs_failed INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS panel_stats (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            scan_id TEXT NOT NULL,
            run TEXT NOT NULL,
            panel TEXT NOT NULL,
            subset TEXT NOT NULL,
            size INTEGER,
            max REAL,
            min REAL,
            mean REAL,
            median REAL,
            sigma REAL,
            sum REAL,
            rms REAL,
            dr REAL,
            recorded_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS load_errors (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            scan_id TEXT NOT NULL,
            run TEXT NOT NULL,
            file TEXT,
            message TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_panel_stats_run ON panel_stats(run);`,
		`CREATE INDEX IF NOT EXISTS idx_panel_stats_scan ON panel_stats(scan_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// ScanRecord summarizes one registry scan.
type ScanRecord struct {
	ID         string
	Root       string
	StartedAt  time.Time
	Duration   time.Duration
	RunsLoaded int
	RunsFailed int
}

// StatRecord is one persisted row of panel statistics.
type StatRecord struct {
	ScanID     string
	Run        string
	Panel      string
	Subset     string
	Summary    imagestats.Summary
	RMS        sql.NullFloat64
	DR         sql.NullFloat64
	RecordedAt time.Time
}

func nullMetric(m imagestats.Metric) sql.NullFloat64 {
	if !m.Valid() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: m.Value, Valid: true}
}

// RecordScan stores the scan header and its load errors.
func (s *Store) RecordScan(reg *registry.Registry) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO scans (id, root, started_at, duration_ms, runs_loaded, runs_failed) VALUES (?, ?, ?, ?, ?, ?);`,
		reg.ScanID, reg.Root, reg.Started.UTC(), reg.Duration.Milliseconds(), reg.Len(), len(reg.Errors()))
	if err != nil {
		return err
	}
	for _, le := range reg.Errors() {
		if _, err := s.DB.Exec(`INSERT INTO load_errors (scan_id, run, file, message) VALUES (?, ?, ?, ?);`,
			reg.ScanID, le.Run, le.File, le.Err.Error()); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun stores the statistics of every panel and subset of run.
func (s *Store) RecordRun(scanID string, run *registry.Run) error {
	if s == nil {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, kind := range registry.PanelKinds {
		p, ok := run.Panel(kind)
		if !ok {
			continue
		}
		for _, sub := range registry.Subsets {
			st := p.Stats[sub]
			sm := st.Summary
			if _, err := tx.Exec(`INSERT INTO panel_stats (scan_id, run, panel, subset, size, max, min, mean, median, sigma, sum, rms, dr, recorded_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
				scanID, run.Name, string(kind), string(sub), sm.Size, sm.Max, sm.Min, sm.Mean, sm.Median, sm.Sigma, sm.Sum,
				nullMetric(st.Quality.RMS), nullMetric(st.Quality.DR), now); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// RecordRegistry stores a scan and every run it loaded.
func (s *Store) RecordRegistry(reg *registry.Registry) error {
	if s == nil {
		return nil
	}
	if err := s.RecordScan(reg); err != nil {
		return err
	}
	for _, run := range reg.Runs() {
		if err := s.RecordRun(reg.ScanID, run); err != nil {
			return err
		}
	}
	return nil
}

// History returns the latest statistics rows for run, newest first.
func (s *Store) History(run string, limit int) ([]StatRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT scan_id, run, panel, subset, size, max, min, mean, median, sigma, sum, rms, dr, recorded_at
        FROM panel_stats WHERE run=? ORDER BY recorded_at DESC, id DESC LIMIT ?;`, run, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []StatRecord
	for rows.Next() {
		var rec StatRecord
		sm := &rec.Summary
		if err := rows.Scan(&rec.ScanID, &rec.Run, &rec.Panel, &rec.Subset, &sm.Size, &sm.Max, &sm.Min, &sm.Mean, &sm.Median, &sm.Sigma, &sm.Sum,
			&rec.RMS, &rec.DR, &rec.RecordedAt); err != nil {
			return nil, err
		}
		sm.Empty = sm.Size == 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RecentScans returns the latest scans up to limit.
func (s *Store) RecentScans(limit int) ([]ScanRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, root, started_at, duration_ms, runs_loaded, runs_failed FROM scans ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var ms int64
		if err := rows.Scan(&rec.ID, &rec.Root, &rec.StartedAt, &ms, &rec.RunsLoaded, &rec.RunsFailed); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
