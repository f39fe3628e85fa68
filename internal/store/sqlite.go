package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/feedcurve/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT NOT NULL,
	summary    TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	name       TEXT NOT NULL,
	rows_in    INTEGER NOT NULL,
	rows_out   INTEGER NOT NULL,
	groups_in  INTEGER NOT NULL,
	groups_out INTEGER NOT NULL,
	dropped    TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_records (
	run_id                   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq                      INTEGER NOT NULL,
	environment_id           INTEGER NOT NULL,
	batch_id                 INTEGER NOT NULL,
	lot_key                  TEXT NOT NULL,
	client_name              TEXT NOT NULL DEFAULT '',
	batch_age                INTEGER NOT NULL,
	pre_batch_feed_delivery  REAL NOT NULL DEFAULT 0,
	feed_delivery            REAL NOT NULL DEFAULT 0,
	feed_measured            REAL NOT NULL DEFAULT 0,
	feed_manual              REAL NOT NULL DEFAULT 0,
	feed_per_bird            REAL,
	silo_empty_time          INTEGER NOT NULL DEFAULT 0,
	silo_no_consumption_time INTEGER NOT NULL DEFAULT 0,
	confidence_level         REAL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_aggregates (
	run_id                     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	lot_key                    TEXT NOT NULL,
	environment_id             INTEGER NOT NULL,
	batch_id                   INTEGER NOT NULL,
	total_consumption_per_bird REAL NOT NULL,
	row_count                  INTEGER NOT NULL,
	PRIMARY KEY (run_id, lot_key)
);

CREATE TABLE IF NOT EXISTS lot_totals (
	lot_key                    TEXT PRIMARY KEY,
	run_id                     TEXT NOT NULL,
	total_consumption_per_bird REAL NOT NULL,
	row_count                  INTEGER NOT NULL,
	updated_at                 DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_records_lot ON run_records(run_id, lot_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input string, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, input, string(model.RunStatusRunning), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr model.RunError) error {
	return s.finishWithError(ctx, runID, model.RunStatusFailed, runErr)
}

func (s *SQLiteStore) MarkEmpty(ctx context.Context, runID string, runErr model.RunError) error {
	return s.finishWithError(ctx, runID, model.RunStatusEmpty, runErr)
}

func (s *SQLiteStore) finishWithError(ctx context.Context, runID string, status model.RunStatus, runErr model.RunError) error {
	errJSON, err := json.Marshal(runErr)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run error")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), string(errJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run %s %s", runID, status)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, status, params, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, params, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveStageReports(ctx context.Context, runID string, reports []model.StageReport) error {
	return s.inTx(ctx, "save stage reports", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO run_stages (run_id, seq, name, rows_in, rows_out, groups_in, groups_out, dropped)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck

		for i, rep := range reports {
			dropped, err := marshalDropped(rep.Dropped)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, runID, i, rep.Name, rep.RowsIn, rep.RowsOut, rep.GroupsIn, rep.GroupsOut, string(dropped)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListStageReports(ctx context.Context, runID string) ([]model.StageReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, rows_in, rows_out, groups_in, groups_out, dropped FROM run_stages WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stage reports %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var reports []model.StageReport
	for rows.Next() {
		var rep model.StageReport
		var dropped string
		if err := rows.Scan(&rep.Name, &rep.RowsIn, &rep.RowsOut, &rep.GroupsIn, &rep.GroupsOut, &dropped); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage report")
		}
		if rep.Dropped, err = unmarshalDropped([]byte(dropped)); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list stage reports iterate")
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error) {
	var n int64
	err := s.inTx(ctx, "save records", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertSQL("run_records", recordColumns, "INSERT"))
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck

		for i, r := range recs {
			if _, err := stmt.ExecContext(ctx, recordValues(runID, i, r)...); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) SaveAggregates(ctx context.Context, runID string, aggs []model.AggregateRow) error {
	return s.inTx(ctx, "save aggregates", func(tx *sql.Tx) error {
		for _, a := range aggs {
			if _, err := tx.ExecContext(ctx, insertSQL("run_aggregates", aggregateColumns, "INSERT OR REPLACE"), aggregateValues(runID, a)...); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lot_totals (lot_key, run_id, total_consumption_per_bird, row_count, updated_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (lot_key) DO UPDATE SET
				   run_id = excluded.run_id,
				   total_consumption_per_bird = excluded.total_consumption_per_bird,
				   row_count = excluded.row_count,
				   updated_at = excluded.updated_at`,
				a.Lot.String(), runID, a.TotalConsumptionPerBird, a.Rows, time.Now().UTC(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListAggregates(ctx context.Context, runID string) ([]model.AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT environment_id, batch_id, total_consumption_per_bird, row_count FROM run_aggregates
		 WHERE run_id = ? ORDER BY environment_id, batch_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list aggregates %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var aggs []model.AggregateRow
	for rows.Next() {
		var a model.AggregateRow
		if err := rows.Scan(&a.Lot.EnvironmentID, &a.Lot.BatchID, &a.TotalConsumptionPerBird, &a.Rows); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan aggregate")
		}
		aggs = append(aggs, a)
	}
	return aggs, eris.Wrap(rows.Err(), "sqlite: list aggregates iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s: begin tx", op)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return eris.Wrapf(err, "sqlite: %s", op)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: %s: commit", op)
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var paramsJSON string
	var summaryJSON, errJSON sql.NullString

	err := row.Scan(&r.ID, &r.Input, &r.Status, &paramsJSON, &summaryJSON, &errJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: get run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	var summary, runErr []byte
	if summaryJSON.Valid {
		summary = []byte(summaryJSON.String)
	}
	if errJSON.Valid {
		runErr = []byte(errJSON.String)
	}
	if err := decodeRunJSON(&r, []byte(paramsJSON), summary, runErr); err != nil {
		return nil, err
	}
	return &r, nil
}
