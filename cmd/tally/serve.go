package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tally/internal/app"
	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/server"
)

var (
	servePort       int
	serveHost       string
	serveReportsDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	Long:  `Starts the HTTP server exposing /api/analyze, /api/health, /api/agents and /metrics.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Server host (overrides config)")
	serveCmd.Flags().StringVar(&serveReportsDir, "reports-dir", "", "Directory report_path requests may read from (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if err := loadConfig(); err != nil {
		return err
	}
	common.ApplyFlagOverrides(config, servePort, serveHost)
	if serveReportsDir != "" {
		config.Server.ReportsDir = serveReportsDir
	}
	logger = common.InitLogger(config, false)
	common.PrintBanner(config, logger)

	logger.Info().
		Strs("config_files", configFiles).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("reports_dir", config.Server.ReportsDir).
		Strs("cors_origins", config.Server.CORSOrigins).
		Str("provider", string(config.LLM.DefaultProvider)).
		Msg("Application configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("Generation backend health check failed")
	}

	srv := server.New(application)

	errChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				common.WriteCrashFile(r, common.GetStackTrace())
				errChan <- fmt.Errorf("server goroutine panicked: %v", r)
			}
		}()
		errChan <- srv.Start()
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Interrupt signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}
