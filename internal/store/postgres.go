package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/db"
	"github.com/sells-group/feedcurve/internal/model"
	"github.com/sells-group/feedcurve/internal/resilience"
)

// copyBatchSize bounds the rows sent in one COPY of curated records.
const copyBatchSize = 5000

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Transient
// connection failures are retried according to retry.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, retry resilience.RetryConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("postgres", "connect")
	}
	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("postgres: connected", zap.Int32("max_conns", maxConns))
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB NOT NULL,
	summary    JSONB,
	error      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	name       TEXT NOT NULL,
	rows_in    INTEGER NOT NULL,
	rows_out   INTEGER NOT NULL,
	groups_in  INTEGER NOT NULL,
	groups_out INTEGER NOT NULL,
	dropped    JSONB NOT NULL DEFAULT '{}'::jsonb,
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
	pre_batch_feed_delivery  DOUBLE PRECISION NOT NULL DEFAULT 0,
	feed_delivery            DOUBLE PRECISION NOT NULL DEFAULT 0,
	feed_measured            DOUBLE PRECISION NOT NULL DEFAULT 0,
	feed_manual              DOUBLE PRECISION NOT NULL DEFAULT 0,
	feed_per_bird            DOUBLE PRECISION,
	silo_empty_time          BIGINT NOT NULL DEFAULT 0,
	silo_no_consumption_time BIGINT NOT NULL DEFAULT 0,
	confidence_level         DOUBLE PRECISION,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_aggregates (
	run_id                     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	lot_key                    TEXT NOT NULL,
	environment_id             INTEGER NOT NULL,
	batch_id                   INTEGER NOT NULL,
	total_consumption_per_bird DOUBLE PRECISION NOT NULL,
	row_count                  INTEGER NOT NULL,
	PRIMARY KEY (run_id, lot_key)
);

CREATE TABLE IF NOT EXISTS lot_totals (
	lot_key                    TEXT PRIMARY KEY,
	run_id                     TEXT NOT NULL,
	total_consumption_per_bird DOUBLE PRECISION NOT NULL,
	row_count                  INTEGER NOT NULL,
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_records_lot ON run_records(run_id, lot_key);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input string, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, input, string(model.RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr model.RunError) error {
	return s.finishWithError(ctx, runID, model.RunStatusFailed, runErr)
}

func (s *PostgresStore) MarkEmpty(ctx context.Context, runID string, runErr model.RunError) error {
	return s.finishWithError(ctx, runID, model.RunStatusEmpty, runErr)
}

func (s *PostgresStore) finishWithError(ctx context.Context, runID string, status model.RunStatus, runErr model.RunError) error {
	errJSON, err := json.Marshal(runErr)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run error")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run %s %s", runID, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, input, status, params, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, params, summary, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var paramsJSON, summaryJSON, errJSON []byte

	if err := row.Scan(&r.ID, &r.Input, &status, &paramsJSON, &summaryJSON, &errJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := decodeRunJSON(&r, paramsJSON, summaryJSON, errJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) SaveStageReports(ctx context.Context, runID string, reports []model.StageReport) error {
	rows := make([][]any, 0, len(reports))
	for i, rep := range reports {
		dropped, err := marshalDropped(rep.Dropped)
		if err != nil {
			return err
		}
		rows = append(rows, []any{runID, i, rep.Name, rep.RowsIn, rep.RowsOut, rep.GroupsIn, rep.GroupsOut, dropped})
	}
	_, err := db.CopyFrom(ctx, s.pool, "run_stages",
		[]string{"run_id", "seq", "name", "rows_in", "rows_out", "groups_in", "groups_out", "dropped"}, rows)
	return eris.Wrapf(err, "postgres: save stage reports %s", runID)
}

func (s *PostgresStore) ListStageReports(ctx context.Context, runID string) ([]model.StageReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, rows_in, rows_out, groups_in, groups_out, dropped FROM run_stages WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stage reports %s", runID)
	}
	defer rows.Close()

	var reports []model.StageReport
	for rows.Next() {
		var rep model.StageReport
		var dropped []byte
		if err := rows.Scan(&rep.Name, &rep.RowsIn, &rep.RowsOut, &rep.GroupsIn, &rep.GroupsOut, &dropped); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage report")
		}
		if rep.Dropped, err = unmarshalDropped(dropped); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list stage reports iterate")
}

func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = recordValues(runID, i, r)
	}
	n, err := db.CopyBatches(ctx, s.pool, "run_records", recordColumns, rows, copyBatchSize)
	if err != nil {
		return n, eris.Wrapf(err, "postgres: save records %s", runID)
	}
	return n, nil
}

// SaveAggregates copies the run's aggregate table and upserts each lot's
// latest total into lot_totals.
func (s *PostgresStore) SaveAggregates(ctx context.Context, runID string, aggs []model.AggregateRow) error {
	rows := make([][]any, len(aggs))
	latest := make([][]any, len(aggs))
	for i, a := range aggs {
		rows[i] = aggregateValues(runID, a)
		latest[i] = []any{a.Lot.String(), runID, a.TotalConsumptionPerBird, a.Rows}
	}

	if _, err := db.CopyFrom(ctx, s.pool, "run_aggregates", aggregateColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: save aggregates %s", runID)
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "lot_totals",
		Columns:      lotTotalColumns,
		ConflictKeys: []string{"lot_key"},
	}, latest)
	return eris.Wrapf(err, "postgres: upsert lot totals %s", runID)
}

func (s *PostgresStore) ListAggregates(ctx context.Context, runID string) ([]model.AggregateRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT environment_id, batch_id, total_consumption_per_bird, row_count FROM run_aggregates
		 WHERE run_id = $1 ORDER BY environment_id, batch_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list aggregates %s", runID)
	}
	defer rows.Close()

	var aggs []model.AggregateRow
	for rows.Next() {
		var a model.AggregateRow
		if err := rows.Scan(&a.Lot.EnvironmentID, &a.Lot.BatchID, &a.TotalConsumptionPerBird, &a.Rows); err != nil {
			return nil, eris.Wrap(err, "postgres: scan aggregate")
		}
		aggs = append(aggs, a)
	}
	return aggs, eris.Wrap(rows.Err(), "postgres: list aggregates iterate")
}
