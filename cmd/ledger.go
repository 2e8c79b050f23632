package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/ledger"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
)

var ledgerJSON bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger <raw-event-id>",
	Short: "Show the decision chain for an event",
	Long:  "Prints every stage decision recorded for the event, in order, with the terminal why_rejected or why_included reason.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eventID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		led := ledger.New(st)
		chain, err := led.Chain(ctx, eventID)
		if err != nil {
			return err
		}
		if len(chain) == 0 {
			return eris.Errorf("no decisions recorded for event %s", eventID)
		}

		if ledgerJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(chain)
		}

		for _, d := range chain {
			line := fmt.Sprintf("%s  %-11s %-7s %s", d.CreatedAt.Format("2006-01-02 15:04:05"), d.Stage, d.Decision, d.Reason)
			if d.ModelName != "" {
				line += fmt.Sprintf("  [%s conf=%.2f %s]", d.ModelName, d.ModelConfidence, d.PromptVersion)
			}
			fmt.Println(line)
		}

		term, err := led.Terminal(ctx, eventID)
		if err != nil {
			return err
		}
		if term == nil {
			fmt.Println("status: in progress")
			return nil
		}
		switch {
		case term.Decision == model.DecisionReject:
			fmt.Printf("why_rejected: %s (at %s)\n", term.Reason, term.Stage)
		default:
			fmt.Printf("why_included: %s\n", term.Reason)
		}
		return nil
	},
}

func init() {
	ledgerCmd.Flags().BoolVar(&ledgerJSON, "json", false, "output JSON")
	rootCmd.AddCommand(ledgerCmd)
}
