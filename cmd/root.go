package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "alphahunter",
	Short: "Web3 announcement processing pipeline",
	Long:  "Normalizes announcement events, dedups them, filters noise with Claude, extracts actionable opportunities, and scores them deterministically.",
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
