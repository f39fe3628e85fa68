//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/feedcurve/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Input:     "data/raw/dataset_consumo.csv",
			Status:    model.RunStatusComplete,
			Summary:   &model.RunSummary{RowsIn: 66, RowsOut: 20, LotsIn: 5, LotsOut: 1},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Second),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Input:     "/very/long/path/to/some/nested/input/table.csv",
			Status:    model.RunStatusEmpty,
			Error:     &model.RunError{Message: "empty", Stage: "boundary_filter"},
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "INPUT")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "20/66")
	assert.Contains(t, output, "1/5")
	assert.Contains(t, output, "empty (boundary_filter)")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.NotContains(t, output, "def12345-6789")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Now()
	runs := []model.Run{
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(2 * time.Second),
			Summary: &model.RunSummary{RowsOut: 20, LotsIn: 4, LotsOut: 1}},
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(4 * time.Second),
			Summary: &model.RunSummary{RowsOut: 40, LotsIn: 4, LotsOut: 3}},
		{Status: model.RunStatusFailed},
		{Status: model.RunStatusEmpty, Error: &model.RunError{Stage: "range_filter"}},
		{Status: model.RunStatusEmpty},
		{Status: model.RunStatusRunning},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Empty)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, 60, s.RowsCurated)
	assert.InDelta(t, 0.5, s.MeanLotRetention, 1e-9)
	assert.InDelta(t, 3.0, s.AvgDurSecs, 1e-9)
	assert.Equal(t, map[string]int{"range_filter": 1, "unknown": 1}, s.EmptyStages)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:            3,
		Complete:         1,
		Empty:            2,
		EmptyStages:      map[string]int{"range_filter": 2},
		RowsCurated:      20,
		MeanLotRetention: 0.25,
		AvgDurSecs:       1.5,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "range_filter:")
	assert.Contains(t, output, "25.0%")
	assert.Contains(t, output, "1.5s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
