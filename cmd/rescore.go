package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/scorer"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
)

var rescoreLimit int

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute opportunity scores from stored actions",
	Long:  "Re-runs the deterministic scorer over the extracted actions behind existing opportunities, e.g. after a weight change. Ledger rows, confidence, and validated backing are untouched; only the weight-derived fields change.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		refs, err := loadReferences(ctx, st)
		if err != nil {
			return err
		}
		engine := scorer.NewEngine(cfg.Scoring, refs)

		opps, err := st.ListOpportunities(ctx, store.OpportunityFilter{Limit: rescoreLimit})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var rescored, skipped int
		for _, opp := range opps {
			action, err := st.GetExtractedAction(ctx, opp.RawEventID)
			if err != nil {
				zap.L().Warn("rescore: missing extracted action",
					zap.String("raw_event_id", opp.RawEventID),
					zap.Error(err),
				)
				skipped++
				continue
			}
			ev, err := st.GetRawEvent(ctx, opp.RawEventID)
			if err != nil {
				zap.L().Warn("rescore: missing raw event",
					zap.String("raw_event_id", opp.RawEventID),
					zap.Error(err),
				)
				skipped++
				continue
			}

			// The stored action already carries the evidence-filtered
			// backing, so the recomputed score matches the original under
			// unchanged weights. Identity and confidence stay as scored.
			res := engine.Score(*action, ev.SourceID, now)
			opp.Score = res.Score
			opp.ScoreBreakdown = res.Breakdown
			opp.LogicToProfitRatio = res.LogicToProfitRatio
			opp.Priority = res.Priority
			if err := st.SaveOpportunity(ctx, opp); err != nil {
				return err
			}
			rescored++
		}

		zap.L().Info("rescore complete",
			zap.Int("rescored", rescored),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

func init() {
	rescoreCmd.Flags().IntVar(&rescoreLimit, "limit", 1000, "max opportunities to rescore")
	rootCmd.AddCommand(rescoreCmd)
}
