package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/synapse-audio/internal/config"
	"github.com/loqalabs/synapse-audio/internal/overview"
	_ "modernc.org/sqlite"
)

// Store keeps generated audio overviews in SQLite. In ephemeral mode it keeps
// nothing and every lookup misses.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "store"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS overviews (
    id TEXT PRIMARY KEY,
    notebook_id TEXT,
    dialogue TEXT NOT NULL,
    provider_unavailable INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    overview_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    speaker TEXT NOT NULL,
    label TEXT,
    text TEXT NOT NULL,
    status TEXT NOT NULL,
    audio BLOB,
    error TEXT,
    PRIMARY KEY(overview_id, position),
    FOREIGN KEY(overview_id) REFERENCES overviews(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_overviews_notebook_created ON overviews(notebook_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *Store) persistent() bool {
	return s.cfg.RetentionMode != "ephemeral" && s.db != nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Healthy reports whether the database answers pings. An ephemeral store is
// always healthy.
func (s *Store) Healthy(ctx context.Context) bool {
	if !s.persistent() {
		return true
	}
	return s.db.PingContext(ctx) == nil
}

// SaveOverview writes an overview and all of its segments, replacing any
// previous copy with the same id.
func (s *Store) SaveOverview(ctx context.Context, ov *overview.Overview) (err error) {
	if !s.persistent() {
		return nil
	}
	created := ov.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM overviews WHERE id = ?`, ov.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO overviews(id, notebook_id, dialogue, provider_unavailable, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		ov.ID, ov.NotebookID, ov.Dialogue, ov.ProviderUnavailable, created.UTC().UnixNano()); err != nil {
		return err
	}
	for i, seg := range ov.Segments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO segments(overview_id, position, speaker, label, text, status, audio, error)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			ov.ID, i, seg.Speaker.String(), seg.Label, seg.Text, string(seg.Status), seg.Audio, seg.Error); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	if perr := s.Prune(ctx); perr != nil {
		s.log.Warn("store prune failed", slog.String("error", perr.Error()))
	}
	return nil
}

// ReplaceSegment swaps one stored segment, leaving its siblings untouched.
func (s *Store) ReplaceSegment(ctx context.Context, overviewID string, index int, seg overview.Segment) error {
	if !s.persistent() {
		return overview.ErrNotFound
	}
	if err := seg.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE segments SET speaker = ?, label = ?, text = ?, status = ?, audio = ?, error = ?
		 WHERE overview_id = ? AND position = ?`,
		seg.Speaker.String(), seg.Label, seg.Text, string(seg.Status), seg.Audio, seg.Error, overviewID, index)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM overviews WHERE id = ?`, overviewID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return overview.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %d", overview.ErrSegmentIndex, index)
}

// LoadOverview reads an overview and its segments in order.
func (s *Store) LoadOverview(ctx context.Context, id string) (*overview.Overview, error) {
	if !s.persistent() {
		return nil, overview.ErrNotFound
	}

	ov := &overview.Overview{ID: id}
	var notebook sql.NullString
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT notebook_id, dialogue, provider_unavailable, created_at FROM overviews WHERE id = ?`, id).
		Scan(&notebook, &ov.Dialogue, &ov.ProviderUnavailable, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, overview.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ov.NotebookID = notebook.String
	ov.CreatedAt = time.Unix(0, created).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT speaker, label, text, status, audio, error
		 FROM segments WHERE overview_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ov.Segments = []overview.Segment{}
	for rows.Next() {
		var (
			seg          overview.Segment
			speaker      string
			label, cause sql.NullString
			status       string
		)
		if err := rows.Scan(&speaker, &label, &seg.Text, &status, &seg.Audio, &cause); err != nil {
			return nil, err
		}
		if seg.Speaker, err = overview.ParseSpeaker(speaker); err != nil {
			return nil, err
		}
		seg.Label = label.String
		seg.Status = overview.Status(status)
		seg.Error = cause.String
		ov.Segments = append(ov.Segments, seg)
	}
	return ov, rows.Err()
}

// Prune applies configured retention (called on startup and after each save).
func (s *Store) Prune(ctx context.Context) (err error) {
	if !s.persistent() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM overviews WHERE created_at < ?`, cutoff.UTC().UnixNano()); err != nil {
			return err
		}
	}
	if s.cfg.MaxOverviews > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM overviews WHERE id IN (
			SELECT id FROM overviews ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxOverviews)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
