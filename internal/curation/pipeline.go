package curation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/model"
)

// Result is the output of a pipeline run. On ErrEmptyDataset it holds
// everything produced up to the stage that emptied the table.
type Result struct {
	Records    []model.Record
	Aggregates []model.AggregateRow
	Curves     []model.FittedCurve
	Reports    []model.StageReport
	Summary    model.RunSummary

	// StoppedAt names the stage that ended the run early, if any.
	StoppedAt string
}

// Pipeline composes the curation stages in order.
type Pipeline struct {
	opts Options
}

// New creates a pipeline with the given options.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Options returns the options the pipeline runs with.
func (p *Pipeline) Options() Options { return p.opts }

// Run executes normalize, range filter, boundary filter, curve fit,
// confidence filter, aggregation, and, when enabled, the outlier filter.
// A stage that leaves no rows stops the run with ErrEmptyDataset.
func (p *Pipeline) Run(ctx context.Context, raw []model.RawRecord) (*Result, error) {
	res := &Result{}
	res.Summary.RowsIn = len(raw)

	stop := func(stage string) (*Result, error) {
		res.StoppedAt = stage
		zap.L().Warn("curation: stage left no rows", zap.String("stage", stage))
		return res, eris.Wrapf(ErrEmptyDataset, "curation: %s", stage)
	}

	if len(raw) == 0 {
		return stop(StageNormalize)
	}

	recs, report := Normalize(raw, p.opts.Normalize)
	res.Reports = append(res.Reports, report)
	res.Summary.LotsIn = report.GroupsIn
	if len(recs) == 0 {
		return stop(StageNormalize)
	}

	recs, report = FilterRange(recs, p.opts.Range)
	res.Reports = append(res.Reports, report)
	if len(recs) == 0 {
		return stop(StageRange)
	}

	recs, report = FilterBoundary(recs, p.opts.Boundary)
	res.Reports = append(res.Reports, report)
	if len(recs) == 0 {
		return stop(StageBoundary)
	}

	recs, curves, report, err := FitCurves(ctx, recs, p.opts.Fit)
	if err != nil {
		res.StoppedAt = StageFit
		return res, err
	}
	res.Curves = curves
	res.Reports = append(res.Reports, report)

	recs, report, err = FilterConfidence(recs, p.opts.ConfidenceThreshold)
	if err != nil {
		res.StoppedAt = StageConfidence
		return res, eris.Wrap(err, "curation: confidence filter")
	}
	res.Reports = append(res.Reports, report)
	if len(recs) == 0 {
		return stop(StageConfidence)
	}

	aggs := Aggregate(recs)
	res.Reports = append(res.Reports, aggregateReport(recs, aggs))

	if p.opts.OutlierFilter {
		recs, aggs, report, err = FilterOutliers(recs, aggs)
		if err != nil {
			res.StoppedAt = StageOutlier
			return res, eris.Wrap(err, "curation: outlier filter")
		}
		res.Reports = append(res.Reports, report)
		if len(recs) == 0 {
			return stop(StageOutlier)
		}
	}

	res.Records = recs
	res.Aggregates = aggs
	res.Summary = summarize(res.Summary, recs, aggs, curves)

	zap.L().Info("curation: run complete",
		zap.Int("rows_in", res.Summary.RowsIn),
		zap.Int("rows_out", res.Summary.RowsOut),
		zap.Int("lots_in", res.Summary.LotsIn),
		zap.Int("lots_out", res.Summary.LotsOut),
		zap.Float64("mean_r2", res.Summary.MeanR2),
	)
	return res, nil
}

// summarize fills the output side of the summary from the retained tables.
// MeanR2 averages the confidence of retained lots only.
func summarize(s model.RunSummary, recs []model.Record, aggs []model.AggregateRow, curves []model.FittedCurve) model.RunSummary {
	s.RowsOut = len(recs)
	s.LotsOut = len(aggs)

	retained := make(map[model.LotKey]struct{}, len(aggs))
	for _, a := range aggs {
		retained[a.Lot] = struct{}{}
		s.TotalFeedSum += a.TotalConsumptionPerBird
	}

	var sum float64
	var n int
	for _, c := range curves {
		if _, ok := retained[c.Lot]; ok && c.ConfidenceLevel.Valid {
			sum += c.ConfidenceLevel.Float64
			n++
		}
	}
	if n > 0 {
		s.MeanR2 = sum / float64(n)
	}
	return s
}
