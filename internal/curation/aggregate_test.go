package curation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/model"
)

func TestAggregateSumsPerLot(t *testing.T) {
	recs := []model.Record{
		rec(2, 1, 1, 20), rec(2, 1, 2, 30),
		rec(1, 5, 1, 10), rec(1, 5, 1, 15), // repeated age is summed
		rec(1, 2, 1, 40),
	}

	aggs := Aggregate(recs)
	require.Len(t, aggs, 3)
	assert.Equal(t, model.NewLotKey(1, 2), aggs[0].Lot)
	assert.Equal(t, model.NewLotKey(1, 5), aggs[1].Lot)
	assert.Equal(t, model.NewLotKey(2, 1), aggs[2].Lot)
	assert.InDelta(t, 40.0, aggs[0].TotalConsumptionPerBird, 1e-9)
	assert.InDelta(t, 25.0, aggs[1].TotalConsumptionPerBird, 1e-9)
	assert.Equal(t, 2, aggs[1].Rows)
	assert.InDelta(t, 50.0, aggs[2].TotalConsumptionPerBird, 1e-9)
}

func TestAggregateSumConsistency(t *testing.T) {
	recs := fitFixture()

	var want float64
	for _, r := range recs {
		want += r.FeedPerBird.Float64
	}
	var got float64
	for _, a := range Aggregate(recs) {
		got += a.TotalConsumptionPerBird
	}
	assert.InDelta(t, want, got, 1e-6)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}
