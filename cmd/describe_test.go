//go:build !integration

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/feedcurve/internal/curation"
)

var testStats = curation.Stats{Count: 3, Mean: 2000, Std: 100, Min: 1900, Q1: 1950, Median: 2000, Q3: 2050, Max: 2100}

func TestWriteStats_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStats(&buf, testStats, "table"))
	out := buf.String()
	assert.Contains(t, out, "count")
	assert.Contains(t, out, "25%")
	assert.Contains(t, out, "2000.0000")
}

func TestWriteStats_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStats(&buf, testStats, "yaml"))

	var got curation.Stats
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testStats, got)
}

func TestWriteStats_UnknownFormat(t *testing.T) {
	err := writeStats(&bytes.Buffer{}, testStats, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestStoredAggregates(t *testing.T) {
	dir := t.TempDir()
	cfg = testConfig(dir)
	st := newTestStore(t)

	out, err := runCurate(context.Background(), st, testRequest(dir, writeRawCSV(t, dir, true)))
	require.NoError(t, err)

	aggs, err := storedAggregates(context.Background(), out.RunID)
	require.NoError(t, err)
	require.Len(t, aggs, 1)

	stats, err := curation.Describe(aggs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.InDelta(t, 2090.0, stats.Mean, 1e-6)
}
