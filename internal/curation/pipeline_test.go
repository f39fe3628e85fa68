package curation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/model"
)

func rawLot(env, batch string, n int, f func(age int) float64) []model.RawRecord {
	out := make([]model.RawRecord, 0, n)
	for age := 1; age <= n; age++ {
		out = append(out, model.RawRecord{
			EnvironmentName: env,
			BatchName:       batch,
			BatchAge:        fmt.Sprint(age),
			FeedPerBird:     fmt.Sprint(f(age)),
		})
	}
	return out
}

func pipelineFixture() []model.RawRecord {
	var raw []model.RawRecord
	// Clean linear growth: kept.
	raw = append(raw, rawLot("ENV 1", "BATCH 1", 20, func(a int) float64 { return 10 + 9*float64(a) })...)
	// Final consumption below 150: boundary drop.
	raw = append(raw, rawLot("ENV 2", "BATCH 1", 20, func(a int) float64 { return 20 + 6*float64(a) })...)
	// Alternating noise: low confidence.
	raw = append(raw, rawLot("ENV 3", "BATCH 1", 20, func(a int) float64 {
		switch {
		case a == 1:
			return 20
		case a == 20:
			return 200
		case a%2 == 0:
			return 30
		default:
			return 220
		}
	})...)
	// Too few rows.
	raw = append(raw, rawLot("ENV 4", "BATCH 1", 5, func(a int) float64 { return 20 * float64(a) })...)
	// Unparseable environment.
	raw = append(raw, model.RawRecord{EnvironmentName: "GALPAO X", BatchName: "BATCH 1", BatchAge: "1", FeedPerBird: "20"})
	return raw
}

func TestPipelineRun(t *testing.T) {
	p := New(DefaultOptions())

	res, err := p.Run(context.Background(), pipelineFixture())
	require.NoError(t, err)
	assert.Empty(t, res.StoppedAt)

	require.Len(t, res.Records, 20)
	for _, r := range res.Records {
		assert.Equal(t, "1-1", r.Lot.String())
		assert.True(t, r.ConfidenceLevel.Valid)
		assert.GreaterOrEqual(t, r.ConfidenceLevel.Float64, 0.80)
		assert.GreaterOrEqual(t, r.FeedPerBird.Float64, 15.0)
		assert.LessOrEqual(t, r.FeedPerBird.Float64, 250.0)
	}

	require.Len(t, res.Aggregates, 1)
	assert.InDelta(t, 2090.0, res.Aggregates[0].TotalConsumptionPerBird, 1e-9)

	names := make([]string, 0, len(res.Reports))
	for _, r := range res.Reports {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{StageNormalize, StageRange, StageBoundary, StageFit, StageConfidence, StageAggregate}, names)

	assert.Equal(t, 1, res.Reports[0].Dropped[DropMalformedEnvironment])
	assert.Equal(t, 5, res.Reports[1].Dropped[DropUndersizedGroup])
	assert.Equal(t, 20, res.Reports[2].Dropped[DropFinalOutOfBounds])
	assert.Equal(t, 20, res.Reports[4].Dropped[DropLowConfidence])

	assert.Equal(t, 66, res.Summary.RowsIn)
	assert.Equal(t, 20, res.Summary.RowsOut)
	assert.Equal(t, 5, res.Summary.LotsIn)
	assert.Equal(t, 1, res.Summary.LotsOut)
	assert.InDelta(t, 1.0, res.Summary.MeanR2, 1e-9)
	assert.InDelta(t, 2090.0, res.Summary.TotalFeedSum, 1e-9)
}

func TestPipelineRunWithOutlierFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.OutlierFilter = true

	res, err := New(opts).Run(context.Background(), pipelineFixture())
	require.NoError(t, err)
	assert.Equal(t, StageOutlier, res.Reports[len(res.Reports)-1].Name)
	assert.Len(t, res.Aggregates, 1)
}

func TestPipelineRunEmptyStage(t *testing.T) {
	raw := rawLot("ENV 1", "BATCH 1", 20, func(int) float64 { return 900 })

	res, err := New(DefaultOptions()).Run(context.Background(), raw)
	require.ErrorIs(t, err, ErrEmptyDataset)
	assert.Equal(t, StageRange, res.StoppedAt)
	assert.Len(t, res.Reports, 2)
	assert.Empty(t, res.Records)
}

func TestPipelineRunNoInput(t *testing.T) {
	res, err := New(DefaultOptions()).Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyDataset)
	assert.Equal(t, StageNormalize, res.StoppedAt)
}

func TestOptionsParams(t *testing.T) {
	params := DefaultOptions().Params()
	assert.Equal(t, 2, params.PolynomialDegree)
	assert.InDelta(t, 0.80, params.ConfidenceThreshold, 1e-12)
	assert.Equal(t, 15, params.MinGroupRows)
}
