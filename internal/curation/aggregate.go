package curation

import (
	"slices"

	"github.com/sells-group/feedcurve/internal/model"
)

// Aggregate sums feed per bird over all ages of each lot. Repeated ages are
// summed like any other row. Rows come back ordered by lot key.
func Aggregate(recs []model.Record) []model.AggregateRow {
	index := make(map[model.LotKey]int)
	var out []model.AggregateRow
	for _, r := range recs {
		i, ok := index[r.Lot]
		if !ok {
			i = len(out)
			index[r.Lot] = i
			out = append(out, model.AggregateRow{Lot: r.Lot})
		}
		if r.FeedPerBird.Valid {
			out[i].TotalConsumptionPerBird += r.FeedPerBird.Float64
		}
		out[i].Rows++
	}
	slices.SortFunc(out, func(a, b model.AggregateRow) int { return a.Lot.Compare(b.Lot) })
	return out
}

// aggregateReport describes the aggregation step: rows in are records, rows
// out are aggregate rows.
func aggregateReport(recs []model.Record, aggs []model.AggregateRow) model.StageReport {
	report := newReport(StageAggregate, recs)
	report.RowsOut = len(aggs)
	report.GroupsOut = len(aggs)
	logReport(report)
	return report
}
