package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/feedcurve/internal/model"
)

func TestChecker_Check(t *testing.T) {
	lister := &mockLister{runs: []model.Run{
		completeRun(100, 50, 10, 5, 0.9),
		statusRun(model.RunStatusEmpty),
	}}
	cfg := testMonitoringConfig()
	c := NewChecker(NewCollector(lister), NewAlerter(cfg), cfg)

	alerts := c.Check(context.Background())
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertEmptyRuns, alerts[0].Type)
	}
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := testMonitoringConfig()
	c := NewChecker(NewCollector(&mockLister{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)
	assert.Nil(t, c.Check(context.Background()))
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 1
	c := NewChecker(NewCollector(&mockLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}
