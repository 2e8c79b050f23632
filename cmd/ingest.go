package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/pipeline"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Process a JSONL stream of source envelopes",
	Long:  "Reads one envelope per line (from --file or stdin) and runs each through the full pipeline with staged worker pools.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var in io.Reader = os.Stdin
		if ingestFile != "" {
			f, err := os.Open(ingestFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", ingestFile)
			}
			defer f.Close()
			in = f
		}

		runner := env.Pipeline.NewRunner()
		runner.Start(ctx)

		// Drain outcomes while feeding so neither side stalls on a full
		// channel.
		counts := make(map[pipeline.Status]int)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for out := range runner.Outcomes() {
				counts[out.Status]++
				zap.L().Info("event finished",
					zap.String("event_id", out.EventID),
					zap.String("status", string(out.Status)),
					zap.String("stage", string(out.Stage)),
					zap.String("reason", out.Reason),
				)
			}
		}()

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
		var enqueued, malformed int
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var envelope model.Envelope
			if err := json.Unmarshal(line, &envelope); err != nil {
				malformed++
				zap.L().Warn("skipping malformed envelope", zap.Error(err))
				continue
			}
			if err := runner.Enqueue(ctx, envelope); err != nil {
				break
			}
			enqueued++
		}
		if err := scanner.Err(); err != nil {
			zap.L().Error("input read failed", zap.Error(err))
		}

		runErr := runner.Drain()
		<-done

		zap.L().Info("ingest complete",
			zap.Int("enqueued", enqueued),
			zap.Int("malformed", malformed),
			zap.Int("scored", counts[pipeline.StatusScored]),
			zap.Int("rejected", counts[pipeline.StatusRejected]),
			zap.Int("duplicates", counts[pipeline.StatusDuplicate]),
			zap.Int("parked", counts[pipeline.StatusParked]),
			zap.Float64("model_spend_usd", env.Pipeline.SpendUSD()),
			zap.Any("model_spend_by_stage", env.Pipeline.SpendByStage()),
		)

		return runErr
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "JSONL envelope file (default stdin)")
	rootCmd.AddCommand(ingestCmd)
}
