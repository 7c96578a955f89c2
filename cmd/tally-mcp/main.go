package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/tally/internal/app"
	"github.com/ternarybob/tally/internal/common"
)

func main() {
	defer common.RecoverWithCrashFile()

	// Comma separated list, later files override earlier ones
	var configPaths []string
	if env := os.Getenv("TALLY_CONFIG"); env != "" {
		for _, p := range strings.Split(env, ",") {
			if p = strings.TrimSpace(p); p != "" {
				configPaths = append(configPaths, p)
			}
		}
	} else if _, err := os.Stat("tally.toml"); err == nil {
		configPaths = append(configPaths, "tally.toml")
	}

	config, err := common.LoadFromFiles(configPaths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Nothing may be written to stdout: it carries the MCP protocol
	logger := common.InitLogger(config, true)

	application, err := app.New(context.Background(), config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"tally",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createAnalyzeReportTool(), handleAnalyzeReport(application.Orchestrator, logger))
	mcpServer.AddTool(createListAgentsTool(), handleListAgents(application.Orchestrator))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
