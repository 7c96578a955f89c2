package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/tally/internal/app"
	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/models"
)

var (
	analyzeText       string
	analyzeFormat     string
	analyzeMaxRetries int
	analyzeParallel   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze an earnings report",
	Long: `Runs extraction, sentiment analysis and summarization over a report file
(.txt, .md or .html) or inline text given with --text, and prints the result.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeText, "text", "", "Report text to analyze instead of a file")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "Output format: json or yaml")
	analyzeCmd.Flags().IntVar(&analyzeMaxRetries, "max-retries", -1, "Override pipeline.max_retries for this run")
	analyzeCmd.Flags().BoolVar(&analyzeParallel, "parallel", false, "Run extraction and sentiment concurrently")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeFormat != "json" && analyzeFormat != "yaml" {
		return fmt.Errorf("unsupported format %q (want json or yaml)", analyzeFormat)
	}
	if len(args) == 0 && analyzeText == "" {
		return fmt.Errorf("a report file or --text is required")
	}

	if err := loadConfig(); err != nil {
		return err
	}

	// Keep stdout for the result
	logger = common.InitLogger(config, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	text := analyzeText
	if len(args) == 1 {
		text, err = application.ReportLoader.Load(ctx, args[0])
		if err != nil {
			return err
		}
	}

	options := models.RunOptions{}
	if analyzeMaxRetries >= 0 {
		options.MaxRetries = &analyzeMaxRetries
	}
	if cmd.Flags().Changed("parallel") {
		options.ParallelIndependent = &analyzeParallel
	}

	result, err := application.Orchestrator.Analyze(ctx, text, options)
	if err != nil {
		return err
	}

	if err := writeResult(cmd, result); err != nil {
		return err
	}

	if result.RunMetadata.Status == models.RunStatusFailed {
		return fmt.Errorf("analysis failed: %s", joinErrors(result.Errors))
	}
	return nil
}

func writeResult(cmd *cobra.Command, result *models.AnalysisResult) error {
	out := cmd.OutOrStdout()

	if analyzeFormat == "yaml" {
		m, err := result.ToMap()
		if err != nil {
			return err
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(m); err != nil {
			return err
		}
		return encoder.Close()
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func joinErrors(errs []models.StepError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
