package curation

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/feedcurve/internal/model"
)

// Stats summarizes the distribution of aggregate totals.
type Stats struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Q1     float64 `json:"q1" yaml:"q1"`
	Median float64 `json:"median" yaml:"median"`
	Q3     float64 `json:"q3" yaml:"q3"`
	Max    float64 `json:"max" yaml:"max"`
}

// Describe computes descriptive statistics of the aggregate totals. Std is
// the sample standard deviation and is zero for a single lot.
func Describe(aggs []model.AggregateRow) (Stats, error) {
	if len(aggs) == 0 {
		return Stats{}, ErrNoAggregates
	}
	totals := make([]float64, len(aggs))
	for i, a := range aggs {
		totals[i] = a.TotalConsumptionPerBird
	}
	slices.Sort(totals)

	s := Stats{
		Count:  len(totals),
		Min:    totals[0],
		Q1:     quantile(totals, 0.25),
		Median: quantile(totals, 0.5),
		Q3:     quantile(totals, 0.75),
		Max:    totals[len(totals)-1],
	}
	if len(totals) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(totals, nil)
	} else {
		s.Mean = totals[0]
	}
	return s, nil
}
