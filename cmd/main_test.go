//go:build !integration

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedcurve/internal/config"
	"github.com/sells-group/feedcurve/internal/store"
)

// testConfig returns a config with package defaults and a SQLite store in dir.
func testConfig(dir string) *config.Config {
	return &config.Config{
		Curation: config.CurationConfig{
			FeedPerBirdMin:      15,
			FeedPerBirdMax:      250,
			MinGroupRows:        15,
			InitialMax:          50,
			FinalMin:            150,
			FinalMax:            250,
			ConfidenceThreshold: 0.8,
			PolynomialDegree:    2,
			Workers:             2,
			EnvironmentPrefixes: []string{"AVIARIO", "ENV"},
			BatchPrefixes:       []string{"Lote", "BATCH"},
		},
		Input: config.InputConfig{Format: "auto", Delimiter: ";"},
		Output: config.OutputConfig{
			Dir:           filepath.Join(dir, "out"),
			ProcessedFile: "processed.csv",
			AggregateFile: "aggregated.csv",
			Manifest:      true,
		},
		Store: config.StoreConfig{
			Driver:        "sqlite",
			DatabaseURL:   filepath.Join(dir, "test.db"),
			Persist:       true,
			RetryAttempts: 1,
		},
		Server:     config.ServerConfig{Port: 0, RateLimit: 0},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24},
		Log:        config.LogConfig{Level: "info", Format: "json"},
	}
}

// writeRawCSV writes a semicolon-delimited raw table. Lot 1-1 grows
// linearly and survives every stage; lot 4-1 is too small to keep.
func writeRawCSV(t *testing.T, dir string, keepLot bool) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("environmentName;batchName;batchAge;feed_measuredPerBird;clientName\n")
	if keepLot {
		for age := 1; age <= 20; age++ {
			fmt.Fprintf(&b, "ENV 1;BATCH 1;%d;%g;Granja\n", age, 10+9*float64(age))
		}
	}
	for age := 1; age <= 5; age++ {
		fmt.Fprintf(&b, "ENV 4;BATCH 1;%d;%g;Granja\n", age, 20*float64(age))
	}
	path := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := openStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}
