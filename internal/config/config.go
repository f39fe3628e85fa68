package config

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Curation   CurationConfig   `yaml:"curation" mapstructure:"curation"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// CurationConfig holds the thresholds of every pipeline stage.
type CurationConfig struct {
	FeedPerBirdMin      float64  `yaml:"feed_per_bird_min" mapstructure:"feed_per_bird_min" validate:"gte=0,ltefield=FeedPerBirdMax"`
	FeedPerBirdMax      float64  `yaml:"feed_per_bird_max" mapstructure:"feed_per_bird_max" validate:"gt=0"`
	MinGroupRows        int      `yaml:"min_group_rows" mapstructure:"min_group_rows" validate:"gte=3"`
	InitialMin          float64  `yaml:"initial_min" mapstructure:"initial_min" validate:"ltefield=InitialMax"`
	InitialMax          float64  `yaml:"initial_max" mapstructure:"initial_max"`
	FinalMin            float64  `yaml:"final_min" mapstructure:"final_min" validate:"ltefield=FinalMax"`
	FinalMax            float64  `yaml:"final_max" mapstructure:"final_max"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	PolynomialDegree    int      `yaml:"polynomial_degree" mapstructure:"polynomial_degree" validate:"eq=2"`
	Workers             int      `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
	OutlierFilter       bool     `yaml:"outlier_filter" mapstructure:"outlier_filter"`
	EnvironmentPrefixes []string `yaml:"environment_prefixes" mapstructure:"environment_prefixes"`
	BatchPrefixes       []string `yaml:"batch_prefixes" mapstructure:"batch_prefixes"`
}

// InputConfig configures how the flat record table is read.
type InputConfig struct {
	Format    string `yaml:"format" mapstructure:"format" validate:"oneof=auto csv json xlsx"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter" validate:"len=1"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// OutputConfig configures where curated tables are written.
type OutputConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir" validate:"required"`
	ProcessedFile string `yaml:"processed_file" mapstructure:"processed_file" validate:"required"`
	AggregateFile string `yaml:"aggregate_file" mapstructure:"aggregate_file" validate:"required"`
	XLSX          bool   `yaml:"xlsx" mapstructure:"xlsx"`
	Manifest      bool   `yaml:"manifest" mapstructure:"manifest"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver         string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	Persist        bool   `yaml:"persist" mapstructure:"persist"`
	MaxConns       int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns       int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=1"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms" validate:"gte=0"`
}

// ServerConfig configures the reporting server.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
}

// MonitoringConfig configures run health checks and alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	MinLotRetention      float64 `yaml:"min_lot_retention" mapstructure:"min_lot_retention" validate:"gte=0,lte=1"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=1"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDCURVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("curation.feed_per_bird_min", 15.0)
	v.SetDefault("curation.feed_per_bird_max", 250.0)
	v.SetDefault("curation.min_group_rows", 15)
	v.SetDefault("curation.initial_min", 0.0)
	v.SetDefault("curation.initial_max", 50.0)
	v.SetDefault("curation.final_min", 150.0)
	v.SetDefault("curation.final_max", 250.0)
	v.SetDefault("curation.confidence_threshold", 0.80)
	v.SetDefault("curation.polynomial_degree", 2)
	v.SetDefault("curation.workers", 4)
	v.SetDefault("curation.outlier_filter", false)
	v.SetDefault("curation.environment_prefixes", []string{"AVIARIO", "ENV"})
	v.SetDefault("curation.batch_prefixes", []string{"Lote", "BATCH"})
	v.SetDefault("input.format", "auto")
	v.SetDefault("input.delimiter", ";")
	v.SetDefault("input.sheet", "")
	v.SetDefault("output.dir", "data/processed")
	v.SetDefault("output.processed_file", "dataset_consumo_processed.csv")
	v.SetDefault("output.aggregate_file", "aggregated_consumption_per_bird.csv")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.manifest", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "feedcurve.db")
	v.SetDefault("store.persist", true)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_backoff_ms", 500)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_lot_retention", 0.05)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks threshold ordering and value ranges.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
			}
			return eris.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
