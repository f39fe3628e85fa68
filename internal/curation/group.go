package curation

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

// partition indexes the rows of each lot, keeping lots in first-appearance order.
type partition struct {
	keys []model.LotKey
	rows map[model.LotKey][]int
}

func partitionByLot(recs []model.Record) partition {
	p := partition{rows: make(map[model.LotKey][]int)}
	for i, r := range recs {
		idx, ok := p.rows[r.Lot]
		if !ok {
			p.keys = append(p.keys, r.Lot)
		}
		p.rows[r.Lot] = append(idx, i)
	}
	return p
}

func countLots(recs []model.Record) int {
	seen := make(map[model.LotKey]struct{})
	for _, r := range recs {
		seen[r.Lot] = struct{}{}
	}
	return len(seen)
}

// keepLots returns a new table holding only rows whose lot is in keep, in input order.
func keepLots(recs []model.Record, keep map[model.LotKey]bool) []model.Record {
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if keep[r.Lot] {
			out = append(out, r)
		}
	}
	return out
}

func newReport(name string, in []model.Record) model.StageReport {
	return model.StageReport{
		Name:     name,
		RowsIn:   len(in),
		GroupsIn: countLots(in),
		Dropped:  make(map[string]int),
	}
}

func finishReport(report *model.StageReport, out []model.Record) {
	report.RowsOut = len(out)
	report.GroupsOut = countLots(out)
}

func logReport(report model.StageReport) {
	fields := []zap.Field{
		zap.String("stage", report.Name),
		zap.Int("rows_in", report.RowsIn),
		zap.Int("rows_out", report.RowsOut),
		zap.Int("lots_in", report.GroupsIn),
		zap.Int("lots_out", report.GroupsOut),
	}
	for _, reason := range slices.Sorted(maps.Keys(report.Dropped)) {
		fields = append(fields, zap.Int("dropped_"+reason, report.Dropped[reason]))
	}
	zap.L().Info("curation: stage complete", fields...)
}
