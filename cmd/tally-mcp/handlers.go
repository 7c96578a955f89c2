package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// textResult wraps a message as a tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleAnalyzeReport implements the analyze_earnings_report tool
func handleAnalyzeReport(analysis interfaces.AnalysisService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := request.RequireString("report_content")
		if err != nil || strings.TrimSpace(content) == "" {
			return textResult("Error: report_content parameter is required"), nil
		}

		options := models.RunOptions{}
		if maxRetries := request.GetInt("max_retries", -1); maxRetries >= 0 {
			if maxRetries > 10 {
				maxRetries = 10
			}
			options.MaxRetries = &maxRetries
		}

		result, err := analysis.Analyze(ctx, content, options)
		if err != nil {
			var invalid *models.InvalidInputError
			if errors.As(err, &invalid) {
				return textResult(fmt.Sprintf("Error: %v", invalid)), nil
			}
			logger.Error().Err(err).Msg("Analysis failed")
			return textResult(fmt.Sprintf("Analysis error: %v", err)), nil
		}

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return textResult(fmt.Sprintf("Error: failed to encode result: %v", err)), nil
		}
		return textResult(string(data)), nil
	}
}

// handleListAgents implements the list_agents tool
func handleListAgents(analysis interfaces.AnalysisService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(formatSteps(analysis.Steps())), nil
	}
}
