// Package store keeps the history of scans in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/askiada/gradle-usage/internal/report"
)

var (
	// ErrRunNotFound is returned when no run matches an identifier.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when a run identifier prefix matches several runs.
	ErrAmbiguousRun = errors.New("ambiguous run identifier")
)

// RunModel maps the runs table.
type RunModel struct {
	bun.BaseModel `bun:"table:runs"`
	ID            string       `bun:"id,pk"`
	Roots         string       `bun:"roots,notnull"`
	StartedAt     time.Time    `bun:"started_at,notnull"`
	FinishedAt    bun.NullTime `bun:"finished_at"`
	Total         int          `bun:"total,notnull"`
}

// ProjectModel maps the projects table.
type ProjectModel struct {
	bun.BaseModel `bun:"table:projects"`
	ID            int64  `bun:"id,pk,autoincrement"`
	RunID         string `bun:"run_id,notnull"`
	Path          string `bun:"path,notnull"`
	Version       string `bun:"version,notnull"`
}

// Run is a recorded scan.
type Run struct {
	ID         string
	Roots      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
}

// Finished reports whether the scan completed.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

func (m RunModel) run() Run {
	var roots []string
	if m.Roots != "" {
		roots = strings.Split(m.Roots, "\n")
	}

	return Run{
		ID:         m.ID,
		Roots:      roots,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt.Time,
		Total:      m.Total,
	}
}

// Store is a scan history backed by SQLite.
type Store struct {
	db *bun.DB
}

// Open opens the database at dsn, creating the file and its schema when missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "" {
			err := os.MkdirAll(dir, 0o755)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to create history directory %s", dir)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open history database %s", dsn)
	}

	// a single connection serialises writers and keeps in-memory databases shared
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: bun.NewDB(sqlDB, sqlitedialect.New())}

	err = s.createSchema(ctx)
	if err != nil {
		_ = s.db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	for _, model := range []any{(*RunModel)(nil), (*ProjectModel)(nil)} {
		_, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "unable to create history table")
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*ProjectModel)(nil)).
		Index("projects_run_id_idx").
		Column("run_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create history index")
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a scan of roots and returns its identifier.
func (s *Store) BeginRun(ctx context.Context, roots []string) (string, error) {
	run := &RunModel{
		ID:        uuid.NewString(),
		Roots:     strings.Join(roots, "\n"),
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.NewInsert().Model(run).Exec(ctx)
	if err != nil {
		return "", errors.Wrap(err, "unable to record run")
	}

	return run.ID, nil
}

// Record stores a resolved project for run runID.
func (s *Store) Record(ctx context.Context, runID string, entry report.Entry) error {
	_, err := s.db.NewInsert().Model(&ProjectModel{
		RunID:   runID,
		Path:    entry.Path,
		Version: entry.Version,
	}).Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to record project %s", entry.Path)
	}

	return nil
}

// FinishRun marks run runID as completed with total projects.
func (s *Store) FinishRun(ctx context.Context, runID string, total int) error {
	res, err := s.db.NewUpdate().
		Model((*RunModel)(nil)).
		Set("finished_at = ?", time.Now().UTC()).
		Set("total = ?", total).
		Where("id = ?", runID).
		Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to finish run %s", runID)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrRunNotFound, "%s", runID)
	}

	return nil
}

// Runs returns the most recent runs first. A non-positive limit returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	var models []RunModel

	query := s.db.NewSelect().Model(&models).OrderExpr("started_at DESC, rowid DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list runs")
	}

	runs := make([]Run, 0, len(models))
	for _, model := range models {
		runs = append(runs, model.run())
	}

	return runs, nil
}

// Run returns the run whose identifier is id or starts with id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	if id == "" {
		return Run{}, errors.Wrap(ErrRunNotFound, "empty identifier")
	}

	var models []RunModel

	err := s.db.NewSelect().
		Model(&models).
		Where("id = ? OR id LIKE ?", id, escapeLike(id)+"%").
		Limit(2).
		Scan(ctx)
	if err != nil {
		return Run{}, errors.Wrapf(err, "unable to find run %s", id)
	}

	switch {
	case len(models) == 0:
		return Run{}, errors.Wrapf(ErrRunNotFound, "%s", id)
	case len(models) > 1:
		for _, model := range models {
			if model.ID == id {
				return model.run(), nil
			}
		}

		return Run{}, errors.Wrapf(ErrAmbiguousRun, "%s", id)
	default:
		return models[0].run(), nil
	}
}

// Projects returns the projects recorded for run runID, sorted by path.
func (s *Store) Projects(ctx context.Context, runID string) ([]report.Entry, error) {
	var models []ProjectModel

	err := s.db.NewSelect().
		Model(&models).
		Where("run_id = ?", runID).
		OrderExpr("path ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list projects of run %s", runID)
	}

	entries := make([]report.Entry, 0, len(models))
	for _, model := range models {
		entries = append(entries, report.Entry{Path: model.Path, Version: model.Version})
	}

	return entries, nil
}

// escapeLike drops LIKE wildcards, which never appear in run identifiers.
func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
