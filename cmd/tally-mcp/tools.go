package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createAnalyzeReportTool returns the analyze_earnings_report tool definition
func createAnalyzeReportTool() mcp.Tool {
	return mcp.NewTool("analyze_earnings_report",
		mcp.WithDescription("Extract financial metrics, assess sentiment and summarize a quarterly earnings report with a BUY/HOLD/SELL recommendation"),
		mcp.WithString("report_content",
			mcp.Required(),
			mcp.Description("Full text of the earnings report"),
		),
		mcp.WithNumber("max_retries",
			mcp.Description("Retries per failed step (default from config, max: 10)"),
		),
	)
}

// createListAgentsTool returns the list_agents tool definition
func createListAgentsTool() mcp.Tool {
	return mcp.NewTool("list_agents",
		mcp.WithDescription("List the analysis steps in execution order"),
	)
}
