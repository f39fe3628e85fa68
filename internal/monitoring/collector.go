package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedcurve/internal/model"
	"github.com/sells-group/feedcurve/internal/store"
)

// MetricsSnapshot holds a point-in-time view of curation run health.
type MetricsSnapshot struct {
	// Run counts (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsEmpty    int     `json:"runs_empty"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Means over completed runs.
	MeanRowRetention float64 `json:"mean_row_retention"`
	MeanLotRetention float64 `json:"mean_lot_retention"`
	MeanLotsOut      float64 `json:"mean_lots_out"`
	MeanR2           float64 `json:"mean_r2"`
	RowsCurated      int     `json:"rows_curated"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the store method needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
// A non-positive lookback covers every stored run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.RunFilter{Limit: 10000}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	runs, err := c.runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	Summarize(snap, runs)
	return snap, nil
}

// Summarize fills the run counts and means of snap from runs.
func Summarize(snap *MetricsSnapshot, runs []model.Run) {
	snap.RunsTotal = len(runs)

	var rowRet, lotRet, lotsOut, r2 float64
	var summarized int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusEmpty:
			snap.RunsEmpty++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Status != model.RunStatusComplete || r.Summary == nil {
			continue
		}
		summarized++
		rowRet += r.Summary.RowRetention()
		lotRet += r.Summary.LotRetention()
		lotsOut += float64(r.Summary.LotsOut)
		r2 += r.Summary.MeanR2
		snap.RowsCurated += r.Summary.RowsOut
	}

	finished := snap.RunsComplete + snap.RunsFailed + snap.RunsEmpty
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if summarized > 0 {
		n := float64(summarized)
		snap.MeanRowRetention = rowRet / n
		snap.MeanLotRetention = lotRet / n
		snap.MeanLotsOut = lotsOut / n
		snap.MeanR2 = r2 / n
	}
}
