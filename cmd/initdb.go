package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

var initdbSourcesFile string

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the schema and seed reference data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		weights := model.DefaultInvestorWeights()
		if cfg.Scoring.InvestorWeightsPath != "" {
			weights, err = model.LoadInvestorWeights(cfg.Scoring.InvestorWeightsPath)
			if err != nil {
				return err
			}
		}
		if err := st.SeedInvestorWeights(ctx, weights); err != nil {
			return err
		}

		sources := defaultSources()
		if initdbSourcesFile != "" {
			sources, err = model.LoadSources(initdbSourcesFile)
			if err != nil {
				return err
			}
		}
		if err := st.SeedSources(ctx, sources); err != nil {
			return err
		}

		zap.L().Info("database initialized",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("investor_weights", len(weights)),
			zap.Int("sources", len(sources)),
		)
		return nil
	},
}

// defaultSources is the built-in reliability table for common channels.
func defaultSources() []model.Source {
	return []model.Source{
		{ID: "twitter", Reliability: 0.6},
		{ID: "discord", Reliability: 0.5},
		{ID: "telegram", Reliability: 0.4},
		{ID: "project_blog", Reliability: 0.9},
		{ID: "mirror", Reliability: 0.8},
		{ID: "medium", Reliability: 0.7},
	}
}

func init() {
	initdbCmd.Flags().StringVar(&initdbSourcesFile, "sources", "", "YAML source reliability file")
	rootCmd.AddCommand(initdbCmd)
}
