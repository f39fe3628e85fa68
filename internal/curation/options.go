// Package curation turns normalized feed-consumption records into a curated,
// quality-scored dataset: range and size filtering, boundary-consumption
// checks, per-lot quadratic curve fitting, confidence gating, and aggregation.
//
// Every stage is a function from one table to a new table. Inputs are never
// mutated, so a stage's output can be inspected while later stages run.
package curation

import (
	"github.com/sells-group/feedcurve/internal/config"
	"github.com/sells-group/feedcurve/internal/model"
)

// Stage names used in reports, logs, and persisted run history.
const (
	StageNormalize  = "normalize"
	StageRange      = "range_filter"
	StageBoundary   = "boundary_filter"
	StageFit        = "curve_fit"
	StageConfidence = "confidence_filter"
	StageAggregate  = "aggregate"
	StageOutlier    = "outlier_filter"
)

// NormalizeOptions lists the label prefixes stripped from identifiers.
type NormalizeOptions struct {
	EnvironmentPrefixes []string
	BatchPrefixes       []string
}

// RangeOptions bounds per-bird consumption and the minimum lot size.
type RangeOptions struct {
	Min          float64
	Max          float64
	MinGroupRows int
}

// BoundaryOptions bounds consumption at a lot's youngest and oldest ages.
type BoundaryOptions struct {
	InitialMin float64
	InitialMax float64
	FinalMin   float64
	FinalMax   float64
}

// FitOptions controls the per-lot curve fitter.
type FitOptions struct {
	// Workers caps how many lots are fitted concurrently.
	Workers int
}

// Options configures every stage of the pipeline.
type Options struct {
	Normalize           NormalizeOptions
	Range               RangeOptions
	Boundary            BoundaryOptions
	Fit                 FitOptions
	ConfidenceThreshold float64
	OutlierFilter       bool
}

// DefaultOptions returns the thresholds used by the production dataset.
func DefaultOptions() Options {
	return Options{
		Normalize: NormalizeOptions{
			EnvironmentPrefixes: []string{"AVIARIO", "ENV"},
			BatchPrefixes:       []string{"Lote", "BATCH"},
		},
		Range:               RangeOptions{Min: 15, Max: 250, MinGroupRows: 15},
		Boundary:            BoundaryOptions{InitialMin: 0, InitialMax: 50, FinalMin: 150, FinalMax: 250},
		Fit:                 FitOptions{Workers: 4},
		ConfidenceThreshold: 0.80,
	}
}

// OptionsFromConfig maps the curation config section onto pipeline options.
func OptionsFromConfig(c config.CurationConfig) Options {
	return Options{
		Normalize: NormalizeOptions{
			EnvironmentPrefixes: c.EnvironmentPrefixes,
			BatchPrefixes:       c.BatchPrefixes,
		},
		Range: RangeOptions{
			Min:          c.FeedPerBirdMin,
			Max:          c.FeedPerBirdMax,
			MinGroupRows: c.MinGroupRows,
		},
		Boundary: BoundaryOptions{
			InitialMin: c.InitialMin,
			InitialMax: c.InitialMax,
			FinalMin:   c.FinalMin,
			FinalMax:   c.FinalMax,
		},
		Fit:                 FitOptions{Workers: c.Workers},
		ConfidenceThreshold: c.ConfidenceThreshold,
		OutlierFilter:       c.OutlierFilter,
	}
}

// Params snapshots the options for run history.
func (o Options) Params() model.RunParams {
	return model.RunParams{
		FeedPerBirdMin:      o.Range.Min,
		FeedPerBirdMax:      o.Range.Max,
		MinGroupRows:        o.Range.MinGroupRows,
		InitialMin:          o.Boundary.InitialMin,
		InitialMax:          o.Boundary.InitialMax,
		FinalMin:            o.Boundary.FinalMin,
		FinalMax:            o.Boundary.FinalMax,
		ConfidenceThreshold: o.ConfidenceThreshold,
		PolynomialDegree:    polynomialDegree,
		OutlierFilter:       o.OutlierFilter,
	}
}
