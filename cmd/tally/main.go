package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple -c flags supported, later files override earlier ones
	offlineMode bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Earnings report analysis pipeline",
	Long: `Tally extracts financial metrics, assesses sentiment and writes an executive
summary with a BUY/HOLD/SELL recommendation for a quarterly earnings report.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times)")
	rootCmd.PersistentFlags().BoolVar(&offlineMode, "offline", false, "Skip the cloud model and analyse reports with pattern and keyword rules")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves configuration: defaults -> files -> env -> flags
func loadConfig() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("tally.toml"); err == nil {
			configFiles = append(configFiles, "tally.toml")
		} else if _, err := os.Stat("deployments/local/tally.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/tally.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if offlineMode {
		config.LLM.DefaultProvider = common.LLMProviderOffline
	}
	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
