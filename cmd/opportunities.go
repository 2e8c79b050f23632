package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
)

var (
	oppMinScore float64
	oppPriority string
	oppLimit    int
	oppJSON     bool
)

var opportunitiesCmd = &cobra.Command{
	Use:   "opportunities",
	Short: "List scored opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		opps, err := st.ListOpportunities(ctx, store.OpportunityFilter{
			MinScore: oppMinScore,
			Priority: model.PriorityLabel(oppPriority),
			Limit:    oppLimit,
		})
		if err != nil {
			return err
		}

		if oppJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(opps)
		}

		for _, o := range opps {
			deadline := "none"
			if o.DeadlineAt != nil {
				deadline = o.DeadlineAt.Format("2006-01-02")
			}
			marker := " "
			if o.ImmediateToken {
				marker = "!"
			}
			fmt.Printf("%s %-8s %6.2f  %-24s %-12s cost $%.0f  deadline %s\n",
				marker, o.Priority, o.Score, o.ProjectName, o.RequiredAction, o.CostOfEntryUSD, deadline)
		}
		fmt.Printf("%d opportunities\n", len(opps))
		return nil
	},
}

func init() {
	opportunitiesCmd.Flags().Float64Var(&oppMinScore, "min-score", 0, "minimum score")
	opportunitiesCmd.Flags().StringVar(&oppPriority, "priority", "", "filter by priority (high, medium, low)")
	opportunitiesCmd.Flags().IntVar(&oppLimit, "limit", 50, "max results")
	opportunitiesCmd.Flags().BoolVar(&oppJSON, "json", false, "output JSON")
	rootCmd.AddCommand(opportunitiesCmd)
}
