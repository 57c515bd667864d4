package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tg-contract-scanner/internal/usecase/extract"
	"tg-contract-scanner/internal/usecase/poll"
	"tg-contract-scanner/internal/usecase/report"
)

var (
	scanJSON  bool
	chunkSize int
)

var scanCmd = &cobra.Command{
	Use:   "scan [channel]",
	Short: "List contract mentions found in a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var tokensCmd = &cobra.Command{
	Use:   "tokens [channel...]",
	Short: "Scan channels, enrich tokens and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTokens,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output mentions as JSON")
	tokensCmd.Flags().IntVar(&chunkSize, "chunk", report.ChunkLimit, "maximum characters per printed chunk")
	rootCmd.AddCommand(scanCmd, tokensCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	return e.run(cmd.Context(), func(ctx context.Context, ex *extract.Extractor) error {
		if scanJSON {
			res, err := ex.Scan(ctx, args[0])
			if err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Mentions)
		}
		worker := poll.NewWorker(nil, ex, nil, ex.Window(), e.logger)
		printChunks(cmd.OutOrStdout(), worker.Reply(ctx, args[0]))
		return nil
	})
}

func runTokens(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	enricher := e.enricher()
	return e.run(cmd.Context(), func(ctx context.Context, ex *extract.Extractor) error {
		loop := poll.NewLoop(ex, func() poll.EnrichSession { return enricher.Open() }, stdoutNotifier{w: cmd.OutOrStdout()}, nil, poll.Config{
			Channels:   args,
			ChunkLimit: chunkSize,
		}, e.logger)
		return loop.RunCycle(ctx)
	})
}

// stdoutNotifier печатает отчёт вместо отправки в Telegram.
type stdoutNotifier struct{ w io.Writer }

func (n stdoutNotifier) Send(_ context.Context, _ int64, text string) error {
	printChunks(n.w, []string{text})
	return nil
}

func printChunks(w io.Writer, chunks []string) {
	for _, chunk := range chunks {
		fmt.Fprintln(w, chunk)
		fmt.Fprintln(w)
	}
}
