package curation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/model"
)

func TestNormalizeLotKey(t *testing.T) {
	raw := []model.RawRecord{{
		EnvironmentName: "ENV 7",
		BatchName:       "BATCH 12",
		BatchAge:        "3",
		FeedPerBird:     "42.5",
		ClientName:      " Granja Sul ",
		FeedDelivery:    "1200",
		SiloEmptyTime:   "60",
	}}

	recs, report := Normalize(raw, DefaultOptions().Normalize)
	require.Len(t, recs, 1)
	assert.Equal(t, "7-12", recs[0].Lot.String())
	assert.Equal(t, 7, recs[0].EnvironmentID())
	assert.Equal(t, 12, recs[0].BatchID())
	assert.Equal(t, 3, recs[0].BatchAge)
	assert.Equal(t, "Granja Sul", recs[0].ClientName)
	assert.True(t, recs[0].FeedPerBird.Valid)
	assert.InDelta(t, 42.5, recs[0].FeedPerBird.Float64, 1e-9)
	assert.InDelta(t, 1200.0, recs[0].Aux.FeedDelivery, 1e-9)
	assert.Equal(t, int64(60), recs[0].Aux.SiloEmptyTime)
	assert.False(t, recs[0].Scored)

	assert.Equal(t, StageNormalize, report.Name)
	assert.Equal(t, 1, report.RowsIn)
	assert.Equal(t, 1, report.RowsOut)
	assert.Equal(t, 1, report.GroupsOut)
}

func TestNormalizeLabelVariants(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		batch string
		want  string
	}{
		{"accented prefix", "Aviário 3", "Lote 4", "3-4"},
		{"upper case", "AVIARIO 3", "LOTE 4", "3-4"},
		{"no space", "ENV5", "BATCH6", "5-6"},
		{"bare numbers", "8", "9", "8-9"},
		{"integral decimal", "ENV 2.0", "BATCH 1", "2-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []model.RawRecord{{EnvironmentName: tt.env, BatchName: tt.batch, BatchAge: "1", FeedPerBird: "20"}}
			recs, _ := Normalize(raw, DefaultOptions().Normalize)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Lot.String())
		})
	}
}

func TestNormalizeDropsMalformedRows(t *testing.T) {
	raw := []model.RawRecord{
		{EnvironmentName: "GALPAO X", BatchName: "BATCH 1", BatchAge: "1", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "", BatchAge: "1", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "-2", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "1.5", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "2", FeedPerBird: "20"},
	}

	recs, report := Normalize(raw, DefaultOptions().Normalize)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].BatchAge)
	assert.Equal(t, 1, report.Dropped[DropMalformedEnvironment])
	assert.Equal(t, 1, report.Dropped[DropMalformedBatch])
	assert.Equal(t, 2, report.Dropped[DropMalformedAge])
	assert.Equal(t, 4, report.RowsDropped())
}

func TestNormalizeRejectsExponentLabels(t *testing.T) {
	raw := []model.RawRecord{
		{EnvironmentName: "ENV 1e3", BatchName: "BATCH 1", BatchAge: "1", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 2E1", BatchAge: "1", FeedPerBird: "20"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "1e1", FeedPerBird: "20"},
		{EnvironmentName: "ENV 3.00", BatchName: "BATCH 1", BatchAge: "4.0", FeedPerBird: "20"},
	}

	recs, report := Normalize(raw, DefaultOptions().Normalize)
	require.Len(t, recs, 1)
	assert.Equal(t, "3-1", recs[0].Lot.String())
	assert.Equal(t, 4, recs[0].BatchAge)
	assert.Equal(t, 1, report.Dropped[DropMalformedEnvironment])
	assert.Equal(t, 1, report.Dropped[DropMalformedBatch])
	assert.Equal(t, 1, report.Dropped[DropMalformedAge])
}

func TestParseWhole(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12", 12, true},
		{" 12.0 ", 12, true},
		{"-3", -3, true},
		{"1e3", 0, false},
		{"12.5", 0, false},
		{".0", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := parseWhole(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, n, tt.in)
	}
}

func TestNormalizeMeasurementCoercion(t *testing.T) {
	raw := []model.RawRecord{
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "1", FeedPerBird: "35,75"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "2", FeedPerBird: "n/a"},
		{EnvironmentName: "ENV 1", BatchName: "BATCH 1", BatchAge: "3", FeedPerBird: ""},
	}

	recs, report := Normalize(raw, DefaultOptions().Normalize)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].FeedPerBird.Valid)
	assert.InDelta(t, 35.75, recs[0].FeedPerBird.Float64, 1e-9)
	assert.False(t, recs[1].FeedPerBird.Valid)
	assert.False(t, recs[2].FeedPerBird.Valid)
	assert.Empty(t, report.Dropped)
}

func TestCountDuplicateAges(t *testing.T) {
	recs := []model.Record{rec(1, 1, 5, 20), rec(1, 1, 5, 21), rec(1, 2, 5, 20), rec(1, 1, 6, 20)}
	assert.Equal(t, 1, countDuplicateAges(recs))
}
