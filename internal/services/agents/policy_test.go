package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/models"
)

func ptr(v float64) *float64 {
	return &v
}

func metricsWith(growth, margin *float64, beat bool) *models.MetricsResult {
	m := &models.MetricsResult{}
	if growth != nil {
		m.Revenue = &models.Amount{Value: 10, Unit: "billion USD", YoYChange: growth}
	}
	if margin != nil {
		m.OperatingMargin = &models.Margin{Current: *margin}
	}
	if beat {
		m.EPS = &models.EPS{Value: 2, AnalystEstimate: ptr(1.5), BeatEstimate: true}
	}
	return m
}

func TestRecommendationPolicy_Decide(t *testing.T) {
	policy := DefaultRecommendationPolicy()

	positive := &models.SentimentResult{OverallSentiment: models.SentimentPositive, Confidence: 0.85}
	negative := &models.SentimentResult{OverallSentiment: models.SentimentNegative, Confidence: 0.6}

	tests := []struct {
		name           string
		metrics        *models.MetricsResult
		sentiment      *models.SentimentResult
		recommendation string
		score          int
		confidence     float64
	}{
		{
			name:           "strong quarter",
			metrics:        metricsWith(ptr(0.12), ptr(0.285), true),
			sentiment:      positive,
			recommendation: models.RecommendationBuy,
			score:          3,
			confidence:     0.81,
		},
		{
			name:           "nothing known",
			recommendation: models.RecommendationHold,
			score:          0,
			confidence:     0.44,
		},
		{
			name:           "shrinking and unprofitable",
			metrics:        metricsWith(ptr(-0.05), ptr(0.05), false),
			sentiment:      negative,
			recommendation: models.RecommendationSell,
			score:          -3,
			confidence:     0.53,
		},
		{
			name:           "hypergrowth with fat margins",
			metrics:        metricsWith(ptr(0.25), ptr(0.40), false),
			recommendation: models.RecommendationBuy,
			score:          4,
			confidence:     0.62,
		},
		{
			name:           "modest growth only",
			metrics:        metricsWith(ptr(0.09), nil, false),
			sentiment:      &models.SentimentResult{OverallSentiment: models.SentimentPositive, Confidence: 0.9},
			recommendation: models.RecommendationHold,
			score:          2,
			confidence:     0.72,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(tt.metrics, tt.sentiment)
			assert.Equal(t, tt.recommendation, d.Recommendation)
			assert.Equal(t, tt.score, d.Score)
			assert.InDelta(t, tt.confidence, d.Confidence, 1e-9)
			assert.GreaterOrEqual(t, d.Confidence, 0.0)
			assert.LessOrEqual(t, d.Confidence, 1.0)
		})
	}
}

func TestRecommendationPolicy_BeatWeight(t *testing.T) {
	cfg := common.NewDefaultConfig().Recommendation
	m := metricsWith(ptr(0.10), ptr(0.25), true)

	assert.Equal(t, models.RecommendationHold, NewRecommendationPolicy(cfg).Decide(m, nil).Recommendation)

	cfg.BeatWeight = 1
	d := NewRecommendationPolicy(cfg).Decide(m, nil)
	assert.Equal(t, 1, d.BeatScore)
	assert.Equal(t, models.RecommendationBuy, d.Recommendation)
}

func TestRecommendationPolicy_ConfigurableThresholds(t *testing.T) {
	cfg := common.NewDefaultConfig().Recommendation
	cfg.BuyThreshold = 1
	m := metricsWith(ptr(0.09), nil, false)

	assert.Equal(t, models.RecommendationBuy, NewRecommendationPolicy(cfg).Decide(m, nil).Recommendation)
}
