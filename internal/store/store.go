// Package store persists curation runs, their stage reports, curated rows,
// and aggregate tables.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// limit returns the page size, defaulting to 100.
func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for curation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input string, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error
	FailRun(ctx context.Context, runID string, runErr model.RunError) error
	MarkEmpty(ctx context.Context, runID string, runErr model.RunError) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stage reports
	SaveStageReports(ctx context.Context, runID string, reports []model.StageReport) error
	ListStageReports(ctx context.Context, runID string) ([]model.StageReport, error)

	// Curated tables
	SaveRecords(ctx context.Context, runID string, recs []model.Record) (int64, error)
	SaveAggregates(ctx context.Context, runID string, aggs []model.AggregateRow) error
	ListAggregates(ctx context.Context, runID string) ([]model.AggregateRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// recordColumns is the column order of run_records for both backends.
var recordColumns = []string{
	"run_id", "seq", "environment_id", "batch_id", "lot_key", "client_name", "batch_age",
	"pre_batch_feed_delivery", "feed_delivery", "feed_measured", "feed_manual",
	"feed_per_bird", "silo_empty_time", "silo_no_consumption_time", "confidence_level",
}

func recordValues(runID string, seq int, r model.Record) []any {
	return []any{
		runID, seq, r.EnvironmentID(), r.BatchID(), r.Lot.String(), r.ClientName, r.BatchAge,
		r.Aux.PreBatchFeedDelivery, r.Aux.FeedDelivery, r.Aux.FeedMeasured, r.Aux.FeedManual,
		nullFloat(r.FeedPerBird.Float64, r.FeedPerBird.Valid),
		r.Aux.SiloEmptyTime, r.Aux.SiloNoConsumptionTime,
		nullFloat(r.ConfidenceLevel.Float64, r.ConfidenceLevel.Valid),
	}
}

// nullFloat returns nil for an invalid value so drivers write NULL.
func nullFloat(v float64, valid bool) any {
	if !valid {
		return nil
	}
	return v
}

var aggregateColumns = []string{"run_id", "lot_key", "environment_id", "batch_id", "total_consumption_per_bird", "row_count"}

func aggregateValues(runID string, a model.AggregateRow) []any {
	return []any{runID, a.Lot.String(), a.Lot.EnvironmentID, a.Lot.BatchID, a.TotalConsumptionPerBird, a.Rows}
}

var lotTotalColumns = []string{"lot_key", "run_id", "total_consumption_per_bird", "row_count"}

func marshalDropped(dropped map[string]int) ([]byte, error) {
	if dropped == nil {
		dropped = map[string]int{}
	}
	b, err := json.Marshal(dropped)
	return b, eris.Wrap(err, "store: marshal dropped counts")
}

func unmarshalDropped(b []byte) (map[string]int, error) {
	dropped := map[string]int{}
	if len(b) == 0 {
		return dropped, nil
	}
	err := json.Unmarshal(b, &dropped)
	return dropped, eris.Wrap(err, "store: unmarshal dropped counts")
}
