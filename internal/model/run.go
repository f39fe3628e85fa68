package model

import "time"

// RunStatus represents the state of a curation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	// RunStatusEmpty marks a run that stopped early because a stage left no rows.
	RunStatusEmpty RunStatus = "empty"
)

// StageReport records what a single pipeline stage kept and dropped.
type StageReport struct {
	Name      string         `json:"name" yaml:"name"`
	RowsIn    int            `json:"rows_in" yaml:"rows_in"`
	RowsOut   int            `json:"rows_out" yaml:"rows_out"`
	GroupsIn  int            `json:"groups_in" yaml:"groups_in"`
	GroupsOut int            `json:"groups_out" yaml:"groups_out"`
	Dropped   map[string]int `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// RowsDropped returns how many rows the stage removed.
func (s StageReport) RowsDropped() int { return s.RowsIn - s.RowsOut }

// GroupsDropped returns how many lots the stage removed.
func (s StageReport) GroupsDropped() int { return s.GroupsIn - s.GroupsOut }

// RunParams is the snapshot of thresholds a run was executed with.
type RunParams struct {
	FeedPerBirdMin      float64 `json:"feed_per_bird_min" yaml:"feed_per_bird_min"`
	FeedPerBirdMax      float64 `json:"feed_per_bird_max" yaml:"feed_per_bird_max"`
	MinGroupRows        int     `json:"min_group_rows" yaml:"min_group_rows"`
	InitialMin          float64 `json:"initial_min" yaml:"initial_min"`
	InitialMax          float64 `json:"initial_max" yaml:"initial_max"`
	FinalMin            float64 `json:"final_min" yaml:"final_min"`
	FinalMax            float64 `json:"final_max" yaml:"final_max"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	PolynomialDegree    int     `json:"polynomial_degree" yaml:"polynomial_degree"`
	OutlierFilter       bool    `json:"outlier_filter" yaml:"outlier_filter"`
}

// RunSummary holds the final counts of a completed run.
type RunSummary struct {
	RowsIn       int     `json:"rows_in" yaml:"rows_in"`
	RowsOut      int     `json:"rows_out" yaml:"rows_out"`
	LotsIn       int     `json:"lots_in" yaml:"lots_in"`
	LotsOut      int     `json:"lots_out" yaml:"lots_out"`
	MeanR2       float64 `json:"mean_r2" yaml:"mean_r2"`
	TotalFeedSum float64 `json:"total_feed_sum" yaml:"total_feed_sum"`
}

// RowRetention returns the fraction of input rows that reached the output.
func (s RunSummary) RowRetention() float64 {
	if s.RowsIn == 0 {
		return 0
	}
	return float64(s.RowsOut) / float64(s.RowsIn)
}

// LotRetention returns the fraction of input lots that reached the output.
func (s RunSummary) LotRetention() float64 {
	if s.LotsIn == 0 {
		return 0
	}
	return float64(s.LotsOut) / float64(s.LotsIn)
}

// RunError describes why a run failed or stopped.
type RunError struct {
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// Run is one execution of the curation pipeline over an input dataset.
type Run struct {
	ID        string      `json:"id"`
	Input     string      `json:"input"`
	Status    RunStatus   `json:"status"`
	Params    RunParams   `json:"params"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     *RunError   `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
