package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// Summarizer writes the executive summary and picks the recommendation.
//
// The recommendation and confidence always come from the policy. The model,
// when enabled, only writes the headline, narrative and takeaways; a template
// is used when its output cannot be parsed.
type Summarizer struct {
	llm          interfaces.GenerationService
	policy       RecommendationPolicy
	useNarrative bool
	logger       arbor.ILogger
}

// NewSummarizer creates the summarization step
func NewSummarizer(llm interfaces.GenerationService, policy RecommendationPolicy, useNarrative bool, logger arbor.ILogger) *Summarizer {
	return &Summarizer{
		llm:          llm,
		policy:       policy,
		useNarrative: useNarrative,
		logger:       logger,
	}
}

func (s *Summarizer) Name() models.StepName {
	return models.StepSummary
}

func (s *Summarizer) Description() string {
	return "Writes the executive summary and a BUY/HOLD/SELL recommendation"
}

// Validate always passes; missing upstream results are scored as unknown
func (s *Summarizer) Validate(input StepInput) bool {
	return true
}

func (s *Summarizer) Process(ctx context.Context, input StepInput, rc RunContext) models.StepResult {
	start := time.Now()
	logger := rc.logger(s.logger)

	decision := s.policy.Decide(input.Metrics, input.Sentiment)

	summary := templateSummary(input, decision)

	if s.useNarrative && s.llm != nil {
		raw, err := s.llm.ExtractStructured(ctx, summaryPrompt(input, decision), summaryShape,
			interfaces.GenerateOptions{Temperature: 0.3, MaxOutputTokens: 800})
		if err != nil && isGenerationError(err) {
			logger.Warn().Err(err).Int("attempt", rc.Attempt).Msg("Summary generation failed")
			return generationFailure(s.Name(), start, err)
		}
		if err == nil {
			err = applyNarrative(summary, raw)
		}
		if err != nil {
			logger.Warn().Str("reason", describeFallback(err)).Msg("Model narrative unusable, using template")
		}
	}

	if err := validate.Struct(summary); err != nil {
		return models.Failed(s.Name(), time.Since(start), fmt.Sprintf("summary invalid: %v", err))
	}

	logger.Info().
		Str("recommendation", decision.Recommendation).
		Int("score", decision.Score).
		Str("confidence", fmt.Sprintf("%.2f", decision.Confidence)).
		Str("source", summary.Source).
		Msg("Summary generated")

	return models.Succeeded(s.Name(), models.StepData{Summary: summary}, time.Since(start))
}

// applyNarrative overlays model written text onto the template summary
func applyNarrative(summary *models.SummaryResult, raw map[string]interface{}) error {
	headline, _ := raw["headline"].(string)
	narrative, _ := raw["summary"].(string)
	headline, narrative = strings.TrimSpace(headline), strings.TrimSpace(narrative)
	if headline == "" || narrative == "" {
		return &models.ParseError{Reason: "narrative missing headline or summary"}
	}

	summary.Headline = headline
	summary.Summary = narrative
	summary.Source = models.SourceModel

	if items, ok := raw["key_takeaways"].([]interface{}); ok {
		var takeaways []string
		for _, item := range items {
			if text, ok := item.(string); ok && strings.TrimSpace(text) != "" {
				takeaways = append(takeaways, strings.TrimSpace(text))
			}
		}
		if len(takeaways) > 0 {
			summary.KeyTakeaways = takeaways
		}
	}
	return nil
}

var errNoFigures = errors.New("no figures")

func templateSummary(input StepInput, d Decision) *models.SummaryResult {
	sentiment := models.SentimentNeutral
	if input.Sentiment != nil {
		sentiment = input.Sentiment.OverallSentiment
	}
	growth, hasGrowth := input.Metrics.RevenueGrowth()

	var headline string
	switch {
	case sentiment == models.SentimentPositive && hasGrowth && growth > 0.10:
		headline = "Strong Quarter Driven by Revenue Growth"
	case sentiment == models.SentimentPositive:
		headline = "Positive Results with Resilient Performance"
	case sentiment == models.SentimentNegative:
		headline = "Quarterly Challenges Amid Market Headwinds"
	default:
		headline = "Quarterly Results Show Mixed Performance"
	}

	return &models.SummaryResult{
		Headline:        headline,
		Summary:         templateNarrative(input, sentiment),
		Recommendation:  d.Recommendation,
		ConfidenceScore: d.Confidence,
		KeyTakeaways:    templateTakeaways(input.Metrics),
		Score:           d.Score,
		Source:          models.SourcePattern,
	}
}

func templateNarrative(input StepInput, sentiment string) string {
	var parts []string
	m := input.Metrics

	if m != nil {
		if revenue, err := describeAmount("revenue", m.Revenue); err == nil {
			parts = append(parts, revenue)
		}
		if income, err := describeAmount("net income", m.NetIncome); err == nil {
			parts = append(parts, income)
		}
	}
	if m != nil && m.EPS != nil {
		if m.EPS.AnalystEstimate != nil {
			verb := "missed"
			if m.EPS.BeatEstimate {
				verb = "beat"
			}
			parts = append(parts, fmt.Sprintf("EPS of $%.2f %s the $%.2f estimate.", m.EPS.Value, verb, *m.EPS.AnalystEstimate))
		} else {
			parts = append(parts, fmt.Sprintf("EPS was $%.2f.", m.EPS.Value))
		}
	}
	if margin, ok := m.CurrentMargin(); ok {
		trend := "stood at"
		if m.OperatingMargin.Previous != nil {
			if m.OperatingMargin.Trend == "improving" {
				trend = "improved to"
			} else {
				trend = "declined to"
			}
		}
		parts = append(parts, fmt.Sprintf("Operating margin %s %.1f%%.", trend, margin*100))
	}

	if len(parts) == 0 {
		parts = append(parts, "The report did not state headline financial figures.")
	}

	switch sentiment {
	case models.SentimentPositive:
		parts = append(parts, "Management struck an optimistic tone.")
	case models.SentimentNegative:
		parts = append(parts, "Management struck a cautious tone.")
	}
	if input.Sentiment != nil && len(input.Sentiment.RiskFactors) > 0 {
		parts = append(parts, fmt.Sprintf("Risks noted include %s.", strings.Join(input.Sentiment.RiskFactors, ", ")))
	}

	return strings.Join(parts, " ")
}

func describeAmount(label string, a *models.Amount) (string, error) {
	if a == nil {
		return "", errNoFigures
	}
	unit := "B"
	if strings.HasPrefix(a.Unit, "million") {
		unit = "M"
	}
	if a.YoYChange == nil {
		return fmt.Sprintf("%s%s was $%.1f%s.", strings.ToUpper(label[:1]), label[1:], a.Value, unit), nil
	}
	direction := "grew"
	change := *a.YoYChange
	if change < 0 {
		direction = "fell"
		change = -change
	}
	return fmt.Sprintf("%s%s %s %.0f%% year over year to $%.1f%s.", strings.ToUpper(label[:1]), label[1:], direction, change*100, a.Value, unit), nil
}

func templateTakeaways(m *models.MetricsResult) []string {
	if m == nil {
		return nil
	}
	var out []string
	if m.EPS != nil && m.EPS.AnalystEstimate != nil {
		if m.EPS.BeatEstimate {
			out = append(out, "EPS beat the analyst estimate")
		} else {
			out = append(out, "EPS did not beat the analyst estimate")
		}
	}
	if m.OperatingMargin != nil && m.OperatingMargin.Previous != nil {
		out = append(out, fmt.Sprintf("Operating margin is %s", m.OperatingMargin.Trend))
	}
	if best, growth, ok := fastestSegment(m.Segments); ok {
		out = append(out, fmt.Sprintf("Fastest growing segment: %s (%.0f%%)", strings.ReplaceAll(best, "_", " "), growth*100))
	}
	if m.Guidance != nil && len(m.Guidance.Q4RevenueRange) == 2 {
		out = append(out, fmt.Sprintf("Q4 revenue guidance $%.1fB-$%.1fB", m.Guidance.Q4RevenueRange[0], m.Guidance.Q4RevenueRange[1]))
	}
	return out
}

// fastestSegment picks the segment with the highest stated growth, ties by name
func fastestSegment(segments map[string]models.Segment) (string, float64, bool) {
	var best string
	var bestGrowth float64
	found := false
	for name, s := range segments {
		if s.GrowthRate == nil {
			continue
		}
		g := *s.GrowthRate
		if !found || g > bestGrowth || (g == bestGrowth && name < best) {
			best, bestGrowth, found = name, g, true
		}
	}
	return best, bestGrowth, found
}
