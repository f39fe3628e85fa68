package curation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/model"
)

func TestFilterConfidence(t *testing.T) {
	recs := []model.Record{
		scored(rec(1, 1, 1, 20), 0.95, true),
		scored(rec(1, 1, 2, 30), 0.95, true),
		scored(rec(2, 1, 1, 20), 0.80, true),
		scored(rec(3, 1, 1, 20), 0.79, true),
		scored(rec(3, 1, 2, 20), 0.79, true),
		scored(rec(4, 1, 1, 20), 0, false),
	}

	out, report, err := FilterConfidence(recs, 0.80)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, r := range out {
		assert.True(t, r.ConfidenceLevel.Valid)
		assert.GreaterOrEqual(t, r.ConfidenceLevel.Float64, 0.80)
	}
	assert.Equal(t, 2, report.Dropped[DropLowConfidence])
	assert.Equal(t, 1, report.Dropped[DropUndefinedConfidence])
	assert.Equal(t, 4, report.GroupsIn)
	assert.Equal(t, 2, report.GroupsOut)
}

func TestFilterConfidenceIdempotent(t *testing.T) {
	recs := []model.Record{
		scored(rec(1, 1, 1, 20), 0.9, true),
		scored(rec(2, 1, 1, 20), 0.5, true),
		scored(rec(3, 1, 1, 20), 0, false),
	}

	once, _, err := FilterConfidence(recs, 0.8)
	require.NoError(t, err)
	twice, report, err := FilterConfidence(once, 0.8)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Zero(t, report.RowsDropped())
}

func TestFilterConfidenceRequiresScoring(t *testing.T) {
	recs := []model.Record{scored(rec(1, 1, 1, 20), 0.9, true), rec(2, 1, 1, 20)}

	_, _, err := FilterConfidence(recs, 0.8)
	assert.ErrorIs(t, err, ErrNotScored)
}
