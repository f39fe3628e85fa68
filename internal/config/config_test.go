package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 15.0, cfg.Curation.FeedPerBirdMin, 1e-9)
	assert.InDelta(t, 250.0, cfg.Curation.FeedPerBirdMax, 1e-9)
	assert.Equal(t, 15, cfg.Curation.MinGroupRows)
	assert.InDelta(t, 0.0, cfg.Curation.InitialMin, 1e-9)
	assert.InDelta(t, 50.0, cfg.Curation.InitialMax, 1e-9)
	assert.InDelta(t, 150.0, cfg.Curation.FinalMin, 1e-9)
	assert.InDelta(t, 250.0, cfg.Curation.FinalMax, 1e-9)
	assert.InDelta(t, 0.80, cfg.Curation.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 2, cfg.Curation.PolynomialDegree)
	assert.Equal(t, 4, cfg.Curation.Workers)
	assert.False(t, cfg.Curation.OutlierFilter)
	assert.Equal(t, []string{"AVIARIO", "ENV"}, cfg.Curation.EnvironmentPrefixes)
	assert.Equal(t, []string{"Lote", "BATCH"}, cfg.Curation.BatchPrefixes)
	assert.Equal(t, "auto", cfg.Input.Format)
	assert.Equal(t, ";", cfg.Input.Delimiter)
	assert.Equal(t, "data/processed", cfg.Output.Dir)
	assert.Equal(t, "dataset_consumo_processed.csv", cfg.Output.ProcessedFile)
	assert.Equal(t, "aggregated_consumption_per_bird.csv", cfg.Output.AggregateFile)
	assert.True(t, cfg.Output.Manifest)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "feedcurve.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 3, cfg.Store.RetryAttempts)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
curation:
  confidence_threshold: 0.9
  min_group_rows: 20
  outlier_filter: true
store:
  driver: postgres
  database_url: postgres://localhost/feedcurve
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Curation.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 20, cfg.Curation.MinGroupRows)
	assert.True(t, cfg.Curation.OutlierFilter)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.InDelta(t, 250.0, cfg.Curation.FeedPerBirdMax, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
curation:
  confidence_threshold: 0.9
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FEEDCURVE_CURATION_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("FEEDCURVE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.Curation.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvertedBounds(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
curation:
  final_min: 300
  final_max: 250
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FinalMin")
}

func TestLoadRejectsOtherDegree(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FEEDCURVE_CURATION_POLYNOMIAL_DEGREE", "3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PolynomialDegree")
}

func TestLoadRejectsThresholdAboveOne(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FEEDCURVE_CURATION_CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConfidenceThreshold")
}

func TestLoadRejectsBadWebhookURL(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FEEDCURVE_MONITORING_WEBHOOK_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WebhookURL")
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("curation: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
