package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tally/internal/models"
)

const sampleReport = `TechCorp International Q3 2024 Earnings Report

Revenue: $15.2 billion (up 12% YoY); EPS: $4.52 vs estimate $4.30; Net income: $3.8 billion, up 18% year-over-year.
Operating margin: 28.5%, compared to 26.2% last year.
Free cash flow: $4.1 billion, up 22%.
Cloud Services revenue of $6.8 billion grew 35% YoY.
Software Products revenue of $5.1 billion rose 8%.
Hardware revenue of $3.3 billion declined 2%.
Q4 guidance: revenue $16.0 - $16.5 billion, EPS $4.70 - $4.85. Full-year revenue growth of 14% to 15%.

We are thrilled with our outstanding performance. We exceeded expectations and achieved record results,
with strong growth in cloud and unprecedented demand for AI solutions. We remain confident, though cautious
about macroeconomic uncertainty and increasing competition.
`

func TestExtractMetricsFromText_SampleReport(t *testing.T) {
	m := ExtractMetricsFromText(sampleReport)
	require.True(t, m.HasFinancials())
	assert.Equal(t, models.SourcePattern, m.Source)

	require.NotNil(t, m.Revenue)
	assert.Equal(t, 15.2, m.Revenue.Value)
	assert.Equal(t, "billion USD", m.Revenue.Unit)
	require.NotNil(t, m.Revenue.YoYChange)
	assert.InDelta(t, 0.12, *m.Revenue.YoYChange, 1e-9)

	require.NotNil(t, m.NetIncome)
	assert.Equal(t, 3.8, m.NetIncome.Value)
	require.NotNil(t, m.NetIncome.YoYChange)
	assert.InDelta(t, 0.18, *m.NetIncome.YoYChange, 1e-9)

	require.NotNil(t, m.EPS)
	assert.Equal(t, 4.52, m.EPS.Value)
	require.NotNil(t, m.EPS.AnalystEstimate)
	assert.Equal(t, 4.30, *m.EPS.AnalystEstimate)
	assert.True(t, m.EPS.BeatEstimate)

	require.NotNil(t, m.OperatingMargin)
	assert.InDelta(t, 0.285, m.OperatingMargin.Current, 1e-9)
	require.NotNil(t, m.OperatingMargin.Previous)
	assert.InDelta(t, 0.262, *m.OperatingMargin.Previous, 1e-9)
	assert.Equal(t, "improving", m.OperatingMargin.Trend)

	require.NotNil(t, m.FreeCashFlow)
	assert.Equal(t, 4.1, m.FreeCashFlow.Value)

	require.Len(t, m.Segments, 3)
	assert.InDelta(t, 0.35, *m.Segments["cloud_services"].GrowthRate, 1e-9)
	assert.Equal(t, 5.1, m.Segments["software_products"].Revenue)
	assert.InDelta(t, -0.02, *m.Segments["hardware"].GrowthRate, 1e-9)

	require.NotNil(t, m.Guidance)
	assert.Equal(t, []float64{16.0, 16.5}, m.Guidance.Q4RevenueRange)
	assert.Equal(t, []float64{4.70, 4.85}, m.Guidance.Q4EPSRange)
	require.Len(t, m.Guidance.FullYearGrowth, 2)
	assert.InDelta(t, 0.14, m.Guidance.FullYearGrowth[0], 1e-9)
	assert.InDelta(t, 0.15, m.Guidance.FullYearGrowth[1], 1e-9)
}

func TestExtractMetricsFromText_NoFabrication(t *testing.T) {
	m := ExtractMetricsFromText("Revenue came in at $820 million.")
	require.NotNil(t, m.Revenue)
	assert.Equal(t, 820.0, m.Revenue.Value)
	assert.Equal(t, "million USD", m.Revenue.Unit)
	assert.Nil(t, m.Revenue.YoYChange)

	assert.Nil(t, m.EPS)
	assert.Nil(t, m.OperatingMargin)
	assert.Nil(t, m.Guidance)
	assert.Empty(t, m.Segments)
}

func TestExtractMetricsFromText_NothingFound(t *testing.T) {
	m := ExtractMetricsFromText("The annual meeting will be held in May.")
	assert.False(t, m.HasFinancials())
}

func TestGrowthIn(t *testing.T) {
	tests := []struct {
		name     string
		clause   string
		expected float64
		found    bool
	}{
		{"up", " (up 12% YoY)", 0.12, true},
		{"declined", " declined 3.5% on weak demand", -0.035, true},
		{"grew by", " grew by 7%", 0.07, true},
		{"signed", " +9% year-over-year", 0.09, true},
		{"negative signed", " -4% YoY", -0.04, true},
		{"none", " flat versus last quarter", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, found := growthIn(tt.clause)
			assert.Equal(t, tt.found, found)
			assert.InDelta(t, tt.expected, value, 1e-9)
		})
	}
}

func TestClauseAfter(t *testing.T) {
	text := "Revenue: $1B (up 3%); EPS: $1"
	assert.Equal(t, " (up 3%)", clauseAfter(text, len("Revenue: $1B")))
	assert.Equal(t, "", clauseAfter(text, len(text)))
}

func TestMarginTrend_Declining(t *testing.T) {
	m := ExtractMetricsFromText("Operating margin was 18% versus 21% a year ago.")
	require.NotNil(t, m.OperatingMargin)
	assert.InDelta(t, 0.18, m.OperatingMargin.Current, 1e-9)
	assert.Equal(t, "declining", m.OperatingMargin.Trend)
}
