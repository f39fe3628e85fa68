package curation

import (
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

// DropIQROutlier is the drop reason reported by FilterOutliers.
const DropIQROutlier = "iqr_outlier"

// iqrFactor scales the interquartile range into the fence width.
const iqrFactor = 1.5

// quantile returns the p-quantile of sorted values, interpolating linearly
// between the closest ranks at position (n-1)·p.
func quantile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return math.NaN()
	case 1:
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Fences holds the IQR acceptance interval over aggregate totals.
type Fences struct {
	Q1    float64
	Q3    float64
	Lower float64
	Upper float64
}

// IQRFences computes [Q1 − 1.5·IQR, Q3 + 1.5·IQR] over the aggregate totals.
func IQRFences(aggs []model.AggregateRow) Fences {
	totals := make([]float64, len(aggs))
	for i, a := range aggs {
		totals[i] = a.TotalConsumptionPerBird
	}
	slices.Sort(totals)
	q1, q3 := quantile(totals, 0.25), quantile(totals, 0.75)
	iqr := q3 - q1
	return Fences{Q1: q1, Q3: q3, Lower: q1 - iqrFactor*iqr, Upper: q3 + iqrFactor*iqr}
}

// FilterOutliers drops lots whose aggregate total lies outside the IQR fences
// from both the record table and the aggregate table.
func FilterOutliers(recs []model.Record, aggs []model.AggregateRow) ([]model.Record, []model.AggregateRow, model.StageReport, error) {
	report := newReport(StageOutlier, recs)
	if len(aggs) == 0 {
		return nil, nil, report, ErrNoAggregates
	}

	f := IQRFences(aggs)
	keep := make(map[model.LotKey]bool, len(aggs))
	keptAggs := make([]model.AggregateRow, 0, len(aggs))
	for _, a := range aggs {
		if a.TotalConsumptionPerBird < f.Lower || a.TotalConsumptionPerBird > f.Upper {
			continue
		}
		keep[a.Lot] = true
		keptAggs = append(keptAggs, a)
	}

	out := keepLots(recs, keep)
	report.Dropped[DropIQROutlier] = len(recs) - len(out)
	finishReport(&report, out)

	zap.L().Info("curation: outlier fences",
		zap.Float64("q1", f.Q1),
		zap.Float64("q3", f.Q3),
		zap.Float64("lower", f.Lower),
		zap.Float64("upper", f.Upper),
	)
	logReport(report)
	return out, keptAggs, report, nil
}
