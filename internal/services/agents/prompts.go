package agents

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/tally/internal/models"
)

// maxPromptReportChars bounds how much report text goes into a prompt
const maxPromptReportChars = 12000

// The first line of every prompt states the task.

func extractionPrompt(report string) string {
	return fmt.Sprintf(`Extract the financial metrics from this quarterly earnings report.
Use fractions for percentages (12%% = 0.12) and billions for currency amounts.
Omit any field the report does not state. Set beat_estimate to true only when EPS exceeds the analyst estimate.

Report:
%s`, truncate(report, maxPromptReportChars))
}

func sentimentPrompt(report string) string {
	return fmt.Sprintf(`Analyze the sentiment and tone of this earnings report.
overall_sentiment must be one of positive, negative or neutral and confidence a number between 0 and 1.
management_tone is one of optimistic, optimistic_cautious, cautious_pessimistic or neutral.
List the key positive indicators, key negative indicators and the risk factors identified.

Report excerpt:
%s`, truncate(report, 2500))
}

func summaryPrompt(input StepInput, decision Decision) string {
	var b strings.Builder
	b.WriteString("Write an executive summary of this quarter's earnings for investors.\n")
	b.WriteString("Return a short headline, a summary paragraph of three to five sentences and up to four key takeaways.\n")
	fmt.Fprintf(&b, "The recommendation has already been decided as %s; do not contradict it.\n\n", decision.Recommendation)

	if input.Metrics != nil {
		if data, err := json.Marshal(input.Metrics); err == nil {
			fmt.Fprintf(&b, "Financial data:\n%s\n\n", data)
		}
	}
	if input.Sentiment != nil {
		if data, err := json.Marshal(input.Sentiment); err == nil {
			fmt.Fprintf(&b, "Tone analysis:\n%s\n", data)
		}
	}
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// JSON schemas for structured output

func numberField() map[string]interface{} {
	return map[string]interface{}{"type": "number"}
}

func stringList() map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
}

func numberRange() map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": numberField()}
}

func amountShape() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value":      numberField(),
			"unit":       map[string]interface{}{"type": "string"},
			"yoy_change": numberField(),
		},
		"required": []string{"value"},
	}
}

func segmentShape() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"revenue":     numberField(),
			"growth_rate": numberField(),
		},
	}
}

var metricsShape = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"revenue":    amountShape(),
		"net_income": amountShape(),
		"eps": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"value":            numberField(),
				"analyst_estimate": numberField(),
				"beat_estimate":    map[string]interface{}{"type": "boolean"},
			},
		},
		"operating_margin": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"current":  numberField(),
				"previous": numberField(),
				"trend":    map[string]interface{}{"type": "string", "enum": []string{"improving", "declining"}},
			},
		},
		"free_cash_flow": amountShape(),
		"segments": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"cloud_services":    segmentShape(),
				"software_products": segmentShape(),
				"hardware":          segmentShape(),
			},
		},
		"guidance": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"q4_revenue_range": numberRange(),
				"q4_eps_range":     numberRange(),
				"full_year_growth": numberRange(),
			},
		},
	},
}

var sentimentShape = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"overall_sentiment": map[string]interface{}{
			"type": "string",
			"enum": []string{models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral},
		},
		"confidence":              map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"management_tone":         map[string]interface{}{"type": "string"},
		"key_positive_indicators": stringList(),
		"key_negative_indicators": stringList(),
		"risk_factors_identified": stringList(),
	},
	"required": []string{"overall_sentiment", "confidence"},
}

var summaryShape = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"headline":      map[string]interface{}{"type": "string"},
		"summary":       map[string]interface{}{"type": "string"},
		"key_takeaways": stringList(),
	},
	"required": []string{"headline", "summary"},
}
