package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/briefwire/briefwire/internal/config"
	"github.com/briefwire/briefwire/internal/digest"
	"github.com/briefwire/briefwire/internal/pipeline"
)

// generateInput is the file format the generate command consumes. Candidates
// are optional; when present they are composed directly, otherwise the
// subscription's sources are fetched live.
type generateInput struct {
	Subscription digest.Subscription `json:"subscription"`
	Candidates   []digest.Candidate  `json:"candidates,omitempty"`
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a newsletter from a subscription file",
	Long: `Generate a newsletter from a subscription file.

The input file holds a subscription and, optionally, prefetched candidates:

  briefwire generate -i input.json -o ./out

writes out/newsletter.html and out/newsletter.txt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		outDir, _ := cmd.Flags().GetString("output")
		if input == "" {
			return fmt.Errorf("--input is required")
		}

		data, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		var in generateInput
		if err := json.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("parsing input: %w", err)
		}
		if in.Subscription.ItemCount == 0 {
			in.Subscription.ItemCount = digest.DefaultItems
		}
		if in.Subscription.Frequency == "" {
			in.Subscription.Frequency = digest.FrequencyWeekly
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		runner, _, err := buildRuntime(cfg, logger)
		if err != nil {
			return err
		}

		var outcome pipeline.Outcome
		switch {
		case len(in.Candidates) > 0:
			printStep("Composing from %d prefetched candidates", len(in.Candidates))
			outcome = runner.Compose(cmd.Context(), in.Subscription, in.Candidates)
		case len(in.Subscription.Sources) > 0:
			printStep("Acquiring candidates from %d sources", len(in.Subscription.Sources))
			outcome = runner.Run(cmd.Context(), in.Subscription)
		default:
			return fmt.Errorf("input has neither candidates nor sources")
		}

		for _, e := range outcome.Errors {
			printWarning("%s", e.String())
		}
		if outcome.Status == digest.StatusFailed {
			return fmt.Errorf("run failed: %s", outcome.Newsletter.Subject)
		}

		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		htmlPath := filepath.Join(outDir, "newsletter.html")
		textPath := filepath.Join(outDir, "newsletter.txt")
		if err := os.WriteFile(htmlPath, []byte(outcome.Newsletter.HTML), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", htmlPath, err)
		}
		if err := os.WriteFile(textPath, []byte(outcome.Newsletter.Text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", textPath, err)
		}

		printStatus("Subject", "%s", outcome.Newsletter.Subject)
		printStatus("Items", "%d of %d candidates", outcome.SelectedCount, outcome.CandidateCount)
		if outcome.UsedModel {
			printStatus("Composition", "model")
		} else {
			printStatus("Composition", "deterministic fallback")
		}
		printSuccess("Wrote %s and %s", htmlPath, textPath)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringP("input", "i", "", "path to the subscription input file")
	generateCmd.Flags().StringP("output", "o", ".", "directory for the rendered newsletter")
}
