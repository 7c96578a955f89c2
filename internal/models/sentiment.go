package models

// Overall sentiment values
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// SentimentResult is written by the sentiment step
type SentimentResult struct {
	OverallSentiment      string   `json:"overall_sentiment" validate:"required,oneof=positive negative neutral"`
	Confidence            float64  `json:"confidence" validate:"gte=0,lte=1"`
	ManagementTone        string   `json:"management_tone,omitempty"`
	KeyPositiveIndicators []string `json:"key_positive_indicators"`
	KeyNegativeIndicators []string `json:"key_negative_indicators"`
	RiskFactors           []string `json:"risk_factors_identified"`
	Source                string   `json:"source,omitempty"`
}

// Recommendation values
const (
	RecommendationBuy  = "BUY"
	RecommendationHold = "HOLD"
	RecommendationSell = "SELL"
)

// SummaryResult is written by the summarization step
type SummaryResult struct {
	Headline        string   `json:"headline" validate:"required"`
	Summary         string   `json:"summary" validate:"required"`
	Recommendation  string   `json:"recommendation" validate:"required,oneof=BUY HOLD SELL"`
	ConfidenceScore float64  `json:"confidence_score" validate:"gte=0,lte=1"`
	KeyTakeaways    []string `json:"key_takeaways,omitempty"`
	Score           int      `json:"score"`
	Source          string   `json:"source,omitempty"`
}
