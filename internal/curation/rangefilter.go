package curation

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

// Drop reasons reported by FilterRange.
const (
	DropNonNumeric      = "non_numeric"
	DropOutOfRange      = "out_of_range"
	DropUndersizedGroup = "undersized_group"
)

// FilterRange removes rows whose feed per bird is missing or outside
// [opts.Min, opts.Max], then drops whole lots left with fewer than
// opts.MinGroupRows rows. Sizes are counted after the value filter so they
// reflect only valid rows.
func FilterRange(recs []model.Record, opts RangeOptions) ([]model.Record, model.StageReport) {
	report := newReport(StageRange, recs)

	valid := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		switch {
		case !r.FeedPerBird.Valid:
			report.Dropped[DropNonNumeric]++
		case r.FeedPerBird.Float64 < opts.Min || r.FeedPerBird.Float64 > opts.Max:
			report.Dropped[DropOutOfRange]++
		default:
			valid = append(valid, r)
		}
	}

	part := partitionByLot(valid)
	logLargestLots(part, 10)

	keep := make(map[model.LotKey]bool, len(part.keys))
	for _, lot := range part.keys {
		if len(part.rows[lot]) >= opts.MinGroupRows {
			keep[lot] = true
			continue
		}
		report.Dropped[DropUndersizedGroup] += len(part.rows[lot])
	}

	out := keepLots(valid, keep)
	finishReport(&report, out)
	logReport(report)
	return out, report
}

// logLargestLots logs the row counts of the n largest lots after the value filter.
func logLargestLots(part partition, n int) {
	if len(part.keys) == 0 {
		return
	}
	lots := slices.Clone(part.keys)
	slices.SortStableFunc(lots, func(a, b model.LotKey) int {
		return cmp.Compare(len(part.rows[b]), len(part.rows[a]))
	})
	if len(lots) > n {
		lots = lots[:n]
	}
	counts := make(map[string]int, len(lots))
	for _, lot := range lots {
		counts[lot.String()] = len(part.rows[lot])
	}
	zap.L().Debug("curation: lot sizes after value filter", zap.Any("largest", counts))
}
