package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
		{RunStatusEmpty, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestStageReportDrops(t *testing.T) {
	t.Parallel()

	r := StageReport{RowsIn: 100, RowsOut: 60, GroupsIn: 8, GroupsOut: 5}
	assert.Equal(t, 40, r.RowsDropped())
	assert.Equal(t, 3, r.GroupsDropped())
}

func TestRunSummaryRetention(t *testing.T) {
	t.Parallel()

	s := RunSummary{RowsIn: 200, RowsOut: 50, LotsIn: 10, LotsOut: 4}
	assert.InDelta(t, 0.25, s.RowRetention(), 1e-9)
	assert.InDelta(t, 0.4, s.LotRetention(), 1e-9)

	assert.Zero(t, RunSummary{}.RowRetention())
	assert.Zero(t, RunSummary{}.LotRetention())
}
