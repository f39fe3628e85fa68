package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedcurve/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "feedcurve",
	Short: "Poultry feed consumption curation pipeline",
	Long:  "Cleans raw per-day feed records, scores each lot with a quadratic consumption curve, keeps well-behaved lots, and aggregates total consumption per bird.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
