package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "lot_totals",
		Columns:      []string{"lot_key", "total"},
		ConflictKeys: []string{"lot_key"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "lot_totals",
		ConflictKeys: []string{"lot_key"},
	}, [][]any{{"7-12", 2090.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "lot_totals",
		Columns: []string{"lot_key", "total"},
	}, [][]any{{"7-12", 2090.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsertSQL(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "lot_totals",
		Columns:      []string{"lot_key", "total", "run_id"},
		ConflictKeys: []string{"lot_key"},
	}
	assert.Equal(t,
		`INSERT INTO "lot_totals" ("lot_key", "total", "run_id") SELECT "lot_key", "total", "run_id" FROM "_tmp" ON CONFLICT ("lot_key") DO UPDATE SET "total" = EXCLUDED."total", "run_id" = EXCLUDED."run_id"`,
		cfg.UpsertSQL("_tmp"))

	cfg.Columns = []string{"lot_key"}
	assert.Contains(t, cfg.UpsertSQL("_tmp"), "DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"feedcurve.lot_totals", `"feedcurve"."lot_totals"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
