package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const cliReport = `Q3 2024 Earnings Report
Revenue: $15.2 billion (up 12% YoY)
EPS: $4.52 vs analyst estimate of $4.30
Results exceeded expectations.`

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommand_Formats(t *testing.T) {
	out, err := executeCommand(t, "analyze", "--offline", "--text", cliReport, "--format", "json")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result, "metrics")
	assert.Contains(t, result, "summary")
	assert.Contains(t, result, "run_metadata")

	out, err = executeCommand(t, "analyze", "--offline", "--text", cliReport, "--format", "yaml")
	require.NoError(t, err)

	var yamlResult map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &yamlResult))
	assert.Contains(t, yamlResult, "run_metadata")
}

func TestAnalyzeCommand_RejectsBadInput(t *testing.T) {
	_, err := executeCommand(t, "analyze", "--offline", "--text", "", "--format", "json")
	assert.Error(t, err)

	_, err = executeCommand(t, "analyze", "--offline", "--text", cliReport, "--format", "xml")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tally")
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "q3.txt")
	second := filepath.Join(dir, "q4.md")
	require.NoError(t, os.WriteFile(first, []byte(cliReport), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(cliReport), 0o644))

	out, err := executeCommand(t, "batch", "--offline", "--workers", "2", "--format", "json", first, second)
	require.NoError(t, err)

	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, first, items[0]["path"])
	assert.Equal(t, second, items[1]["path"])
	assert.Contains(t, items[0], "result")
}

func TestAnalyzeCommand_OfflineReadsReportFigures(t *testing.T) {
	report := "Acme Corp Q2 2024\nRevenue: $3.1 billion (down 20% YoY)\nA weak, difficult quarter with a shortfall in orders."

	out, err := executeCommand(t, "analyze", "--offline", "--text", report, "--format", "json")
	require.NoError(t, err)

	var result struct {
		Metrics struct {
			Revenue struct {
				Value float64 `json:"value"`
			} `json:"revenue"`
		} `json:"metrics"`
		Sentiment struct {
			OverallSentiment string `json:"overall_sentiment"`
		} `json:"sentiment"`
		RunMetadata struct {
			Provider string `json:"provider"`
		} `json:"run_metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 3.1, result.Metrics.Revenue.Value)
	assert.Equal(t, "negative", result.Sentiment.OverallSentiment)
	assert.Equal(t, "pattern", result.RunMetadata.Provider)
}
