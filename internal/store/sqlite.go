// Package store persists completed analysis runs to SQLite so past results
// can be listed and compared without re-running the pipeline.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/georetail/siteselect/internal/model"
)

// Run is one persisted analysis run.
type Run struct {
	ID          string    `json:"id"`
	StudyArea   string    `json:"study_area"`
	CellCount   int       `json:"cell_count"`
	MeanScore   float64   `json:"mean_score"`
	MaxScore    float64   `json:"max_score"`
	Underserved int       `json:"underserved"`
	ConfigJSON  string    `json:"config_json"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunCell is the persisted per-cell result subset.
type RunCell struct {
	RunID           string      `json:"run_id"`
	CellID          int64       `json:"cell_id"`
	Score           float64     `json:"score"`
	Rank            int         `json:"rank"`
	Class           model.Class `json:"class"`
	Underserved     bool        `json:"underserved"`
	ZeroCompetition bool        `json:"zero_competition"`
}

// SQLiteStore persists runs using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id          TEXT PRIMARY KEY,
	study_area  TEXT NOT NULL,
	cell_count  INTEGER NOT NULL,
	mean_score  REAL NOT NULL,
	max_score   REAL NOT NULL,
	underserved INTEGER NOT NULL,
	config      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_cells (
	run_id           TEXT NOT NULL REFERENCES analysis_runs(id),
	cell_id          INTEGER NOT NULL,
	score            REAL NOT NULL,
	rank             INTEGER NOT NULL,
	class            TEXT NOT NULL,
	underserved      INTEGER NOT NULL,
	zero_competition INTEGER NOT NULL,
	PRIMARY KEY (run_id, cell_id)
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_study_area ON analysis_runs(study_area);
CREATE INDEX IF NOT EXISTS idx_run_cells_run_id_rank ON run_cells(run_id, rank);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run header and every cell result in one transaction and
// returns the generated run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, studyArea string, cfg any, cells []*model.GridCell) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal config")
	}

	var sum, max float64
	var underserved int
	for _, c := range cells {
		sum += c.Score
		if c.Score > max {
			max = c.Score
		}
		if c.Underserved {
			underserved++
		}
	}
	mean := 0.0
	if len(cells) > 0 {
		mean = sum / float64(len(cells))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, study_area, cell_count, mean_score, max_score, underserved, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, studyArea, len(cells), mean, max, underserved, string(cfgJSON), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_cells (run_id, cell_id, score, rank, class, underserved, zero_competition)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: prepare cells")
	}
	defer stmt.Close()

	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx,
			id, c.ID, c.Score, c.Rank, string(c.Class), c.Underserved, c.ZeroCompetition,
		); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert cell %d", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit")
	}
	return id, nil
}

// ListRuns returns run headers, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, study_area, cell_count, mean_score, max_score, underserved, config, created_at
		 FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StudyArea, &r.CellCount, &r.MeanScore,
			&r.MaxScore, &r.Underserved, &r.ConfigJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// TopCells returns the n best-ranked cells of a run.
func (s *SQLiteStore) TopCells(ctx context.Context, runID string, n int) ([]RunCell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, cell_id, score, rank, class, underserved, zero_competition
		 FROM run_cells WHERE run_id = ? ORDER BY rank ASC LIMIT ?`, runID, n)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: top cells for %s", runID)
	}
	defer rows.Close()

	var cells []RunCell
	for rows.Next() {
		var c RunCell
		var class string
		if err := rows.Scan(&c.RunID, &c.CellID, &c.Score, &c.Rank, &class,
			&c.Underserved, &c.ZeroCompetition); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		c.Class = model.Class(class)
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: iterate cells")
}
