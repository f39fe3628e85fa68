package curation

import (
	"context"
	"database/sql"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/feedcurve/internal/model"
)

// polynomialDegree is the only supported curve degree.
const polynomialDegree = 2

// Reasons a lot's confidence level is undefined.
const (
	ReasonTooFewRows     = "too_few_rows"
	ReasonDegenerateAges = "degenerate_ages"
	ReasonZeroVariance   = "zero_variance"
	ReasonSingularFit    = "singular_fit"
)

// FitCurve fits feed per bird as a quadratic in batch age by ordinary least
// squares and scores the fit with R². Ages are centred on their mean before
// solving; the returned coefficients are in raw age units.
func FitCurve(lot model.LotKey, ages []int, ys []float64) model.FittedCurve {
	curve := model.FittedCurve{Lot: lot, Rows: len(ys)}
	n := len(ys)
	if n < polynomialDegree+1 {
		curve.Reason = ReasonTooFewRows
		return curve
	}

	distinct := make(map[int]struct{}, n)
	xs := make([]float64, n)
	for i, a := range ages {
		distinct[a] = struct{}{}
		xs[i] = float64(a)
	}
	if len(distinct) < 2 {
		curve.Reason = ReasonDegenerateAges
		return curve
	}
	// With two distinct ages the quadratic term is not identifiable; the
	// least-squares fit is the line through the per-age means.
	cols := min(len(distinct), polynomialDegree+1)

	yMean := stat.Mean(ys, nil)
	var ssTot float64
	for _, y := range ys {
		ssTot += (y - yMean) * (y - yMean)
	}
	if ssTot == 0 {
		curve.Reason = ReasonZeroVariance
		return curve
	}

	m := stat.Mean(xs, nil)
	design := mat.NewDense(n, cols, nil)
	for i, x := range xs {
		d := x - m
		design.Set(i, 0, 1)
		design.Set(i, 1, d)
		if cols > 2 {
			design.Set(i, 2, d*d)
		}
	}
	target := mat.NewVecDense(n, ys)

	var beta mat.VecDense
	if err := beta.SolveVec(design, target); err != nil {
		curve.Reason = ReasonSingularFit
		return curve
	}

	var pred mat.VecDense
	pred.MulVec(design, &beta)
	var ssRes float64
	for i, y := range ys {
		r := y - pred.AtVec(i)
		ssRes += r * r
	}

	r2 := 1 - ssRes/ssTot
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		curve.Reason = ReasonSingularFit
		return curve
	}
	r2 = min(max(r2, 0), 1)

	b0, b1, b2 := beta.AtVec(0), beta.AtVec(1), 0.0
	if cols > 2 {
		b2 = beta.AtVec(2)
	}
	curve.Coefficients = [3]float64{b0 - b1*m + b2*m*m, b1 - 2*b2*m, b2}
	curve.ConfidenceLevel = sql.NullFloat64{Float64: r2, Valid: true}
	return curve
}

// FitCurves fits one curve per lot and broadcasts the lot's confidence level
// to every one of its rows. No rows are removed. Lots are fitted concurrently,
// bounded by opts.Workers; the result does not depend on scheduling.
func FitCurves(ctx context.Context, recs []model.Record, opts FitOptions) ([]model.Record, []model.FittedCurve, model.StageReport, error) {
	report := newReport(StageFit, recs)

	part := partitionByLot(recs)
	curves := make([]model.FittedCurve, len(part.keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for i, lot := range part.keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := part.rows[lot]
			ages := make([]int, len(rows))
			ys := make([]float64, len(rows))
			for j, idx := range rows {
				ages[j] = recs[idx].BatchAge
				ys[j] = recs[idx].FeedPerBird.Float64
			}
			curves[i] = FitCurve(lot, ages, ys)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, report, eris.Wrap(err, "curation: fit curves")
	}

	confidence := make(map[model.LotKey]sql.NullFloat64, len(curves))
	undefined := make(map[string]int)
	for _, c := range curves {
		confidence[c.Lot] = c.ConfidenceLevel
		if c.Reason != "" {
			undefined[c.Reason]++
		}
	}

	out := make([]model.Record, len(recs))
	for i, r := range recs {
		r.ConfidenceLevel = confidence[r.Lot]
		r.Scored = true
		out[i] = r
	}

	finishReport(&report, out)
	logReport(report)
	logConfidencePreview(curves, 5)
	if len(undefined) > 0 {
		zap.L().Info("curation: undefined confidence levels", zap.Any("reasons", undefined))
	}
	return out, curves, report, nil
}

func logConfidencePreview(curves []model.FittedCurve, n int) {
	preview := make(map[string]any, n)
	for _, c := range curves[:min(n, len(curves))] {
		if c.ConfidenceLevel.Valid {
			preview[c.Lot.String()] = c.ConfidenceLevel.Float64
		} else {
			preview[c.Lot.String()] = nil
		}
	}
	zap.L().Debug("curation: confidence preview", zap.Any("lots", preview))
}
