package curation

import (
	"github.com/sells-group/feedcurve/internal/model"
)

// Drop reasons reported by FilterBoundary.
const (
	DropInitialOutOfBounds = "initial_out_of_bounds"
	DropFinalOutOfBounds   = "final_out_of_bounds"
)

// Boundary holds a lot's consumption at its youngest and oldest recorded ages.
type Boundary struct {
	MinAge  int
	MaxAge  int
	Initial float64
	Final   float64
}

// lotBoundary finds the rows with the minimum and maximum age among rows.
// Ties go to the first row in input order.
func lotBoundary(recs []model.Record, rows []int) Boundary {
	first := recs[rows[0]]
	b := Boundary{
		MinAge:  first.BatchAge,
		MaxAge:  first.BatchAge,
		Initial: first.FeedPerBird.Float64,
		Final:   first.FeedPerBird.Float64,
	}
	for _, i := range rows[1:] {
		r := recs[i]
		if r.BatchAge < b.MinAge {
			b.MinAge = r.BatchAge
			b.Initial = r.FeedPerBird.Float64
		}
		if r.BatchAge > b.MaxAge {
			b.MaxAge = r.BatchAge
			b.Final = r.FeedPerBird.Float64
		}
	}
	return b
}

// FilterBoundary keeps only lots whose consumption at the youngest age lies in
// [InitialMin, InitialMax] and at the oldest age in [FinalMin, FinalMax].
// A lot failing either check is dropped with all its rows.
func FilterBoundary(recs []model.Record, opts BoundaryOptions) ([]model.Record, model.StageReport) {
	report := newReport(StageBoundary, recs)

	part := partitionByLot(recs)
	keep := make(map[model.LotKey]bool, len(part.keys))
	for _, lot := range part.keys {
		rows := part.rows[lot]
		b := lotBoundary(recs, rows)
		switch {
		case b.Initial < opts.InitialMin || b.Initial > opts.InitialMax:
			report.Dropped[DropInitialOutOfBounds] += len(rows)
		case b.Final < opts.FinalMin || b.Final > opts.FinalMax:
			report.Dropped[DropFinalOutOfBounds] += len(rows)
		default:
			keep[lot] = true
		}
	}

	out := keepLots(recs, keep)
	finishReport(&report, out)
	logReport(report)
	return out, report
}
