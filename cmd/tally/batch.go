package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/tally/internal/app"
	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/models"
	"github.com/ternarybob/tally/internal/services/batch"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch <file>...",
	Short: "Analyze several earnings reports concurrently",
	Long:  `Analyzes each report file in its own run on a bounded pool of workers and prints the results in input order.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "Maximum concurrent runs")
	batchCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "Output format: json or yaml")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if analyzeFormat != "json" && analyzeFormat != "yaml" {
		return fmt.Errorf("unsupported format %q (want json or yaml)", analyzeFormat)
	}
	if err := loadConfig(); err != nil {
		return err
	}
	logger = common.InitLogger(config, true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	runner := batch.NewRunner(application.Orchestrator, application.ReportLoader, batchWorkers, logger)
	items := runner.Run(ctx, args, models.RunOptions{})

	// Round trip through JSON so results keep their {} and [] rendering in YAML
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	out := cmd.OutOrStdout()
	if analyzeFormat == "yaml" {
		var generic []interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(generic); err != nil {
			return err
		}
		if err := encoder.Close(); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintln(out, string(data)); err != nil {
		return err
	}

	for _, item := range items {
		if item.Err != nil {
			return fmt.Errorf("%s: %w", item.Path, item.Err)
		}
	}
	return nil
}
