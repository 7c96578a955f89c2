package agents

import (
	"math"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/models"
)

// RecommendationPolicy is the decision table that picks BUY/HOLD/SELL.
// Thresholds are fractions; scores are summed and compared with the
// buy and sell thresholds.
type RecommendationPolicy struct {
	StrongGrowth   float64
	ModerateGrowth float64
	StrongMargin   float64
	HealthyMargin  float64
	WeakMargin     float64
	BeatWeight     int
	BuyThreshold   int
	SellThreshold  int
}

// Decision is the outcome of the policy with its score breakdown
type Decision struct {
	Recommendation string
	Score          int
	GrowthScore    int
	MarginScore    int
	SentimentScore int
	BeatScore      int
	Confidence     float64
}

// NewRecommendationPolicy builds a policy from configuration
func NewRecommendationPolicy(cfg common.RecommendationConfig) RecommendationPolicy {
	return RecommendationPolicy{
		StrongGrowth:   cfg.StrongGrowth,
		ModerateGrowth: cfg.ModerateGrowth,
		StrongMargin:   cfg.StrongMargin,
		HealthyMargin:  cfg.HealthyMargin,
		WeakMargin:     cfg.WeakMargin,
		BeatWeight:     cfg.BeatWeight,
		BuyThreshold:   cfg.BuyThreshold,
		SellThreshold:  cfg.SellThreshold,
	}
}

// DefaultRecommendationPolicy returns the policy for the default configuration
func DefaultRecommendationPolicy() RecommendationPolicy {
	return NewRecommendationPolicy(common.NewDefaultConfig().Recommendation)
}

// Decide scores the metrics and sentiment. Either may be nil; an unknown
// figure contributes zero.
func (p RecommendationPolicy) Decide(m *models.MetricsResult, s *models.SentimentResult) Decision {
	var d Decision

	if growth, ok := m.RevenueGrowth(); ok {
		switch {
		case growth > p.StrongGrowth:
			d.GrowthScore = 2
		case growth > p.ModerateGrowth:
			d.GrowthScore = 1
		case growth < 0:
			d.GrowthScore = -1
		}
	}

	margin, hasMargin := m.CurrentMargin()
	if hasMargin {
		switch {
		case margin > p.StrongMargin:
			d.MarginScore = 2
		case margin > p.HealthyMargin:
			d.MarginScore = 1
		case margin < p.WeakMargin:
			d.MarginScore = -1
		}
	}

	sentimentConfidence := 0.5
	if s != nil {
		switch s.OverallSentiment {
		case models.SentimentPositive:
			d.SentimentScore = 1
		case models.SentimentNegative:
			d.SentimentScore = -1
		}
		sentimentConfidence = s.Confidence
	}

	if m.BeatEstimate() {
		d.BeatScore = p.BeatWeight
	}

	d.Score = d.GrowthScore + d.MarginScore + d.SentimentScore + d.BeatScore
	switch {
	case d.Score >= p.BuyThreshold:
		d.Recommendation = models.RecommendationBuy
	case d.Score <= p.SellThreshold:
		d.Recommendation = models.RecommendationSell
	default:
		d.Recommendation = models.RecommendationHold
	}

	marginConfidence := math.Min(0.95, 0.3+margin*1.5)
	d.Confidence = round2(clamp01(0.7*sentimentConfidence + 0.3*marginConfidence))
	return d
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
