package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// SentimentAnalyzer judges the tone of the report.
//
// The model result is validated before use. Unparseable or invalid output
// falls back to keyword analysis of the raw text; a backend failure is
// returned as FAILED.
type SentimentAnalyzer struct {
	llm    interfaces.GenerationService
	logger arbor.ILogger
}

// NewSentimentAnalyzer creates the sentiment step. llm may be nil.
func NewSentimentAnalyzer(llm interfaces.GenerationService, logger arbor.ILogger) *SentimentAnalyzer {
	return &SentimentAnalyzer{llm: llm, logger: logger}
}

func (s *SentimentAnalyzer) Name() models.StepName {
	return models.StepSentiment
}

func (s *SentimentAnalyzer) Description() string {
	return "Classifies management tone, positive and negative indicators and risk factors"
}

func (s *SentimentAnalyzer) Validate(input StepInput) bool {
	return strings.TrimSpace(input.ReportText) != ""
}

func (s *SentimentAnalyzer) Process(ctx context.Context, input StepInput, rc RunContext) models.StepResult {
	start := time.Now()
	logger := rc.logger(s.logger)

	if s.llm != nil {
		raw, err := s.llm.ExtractStructured(ctx, sentimentPrompt(input.ReportText), sentimentShape,
			interfaces.GenerateOptions{Temperature: 0.3, MaxOutputTokens: 600})
		if err != nil && isGenerationError(err) {
			logger.Warn().Err(err).Int("attempt", rc.Attempt).Msg("Sentiment generation failed")
			return generationFailure(s.Name(), start, err)
		}

		var result *models.SentimentResult
		if err == nil {
			result, err = decodeSentiment(raw)
		}
		if err == nil {
			logger.Debug().
				Str("sentiment", result.OverallSentiment).
				Str("confidence", fmt.Sprintf("%.2f", result.Confidence)).
				Msg("Model sentiment accepted")
			return models.Succeeded(s.Name(), models.StepData{Sentiment: result}, time.Since(start))
		}

		logger.Warn().Str("reason", describeFallback(err)).Msg("Model sentiment unusable, using keyword analysis")
	}

	result := AnalyzeKeywords(input.ReportText)
	return models.Succeeded(s.Name(), models.StepData{Sentiment: result}, time.Since(start))
}

// decodeSentiment converts and validates a model mapping
func decodeSentiment(raw map[string]interface{}) (*models.SentimentResult, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &models.ParseError{Reason: "sentiment not serialisable", Err: err}
	}

	var result models.SentimentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &models.ParseError{Reason: "sentiment has unexpected types", Snippet: truncate(string(data), 200), Err: err}
	}

	result.OverallSentiment = strings.ToLower(strings.TrimSpace(result.OverallSentiment))
	if _, ok := raw["confidence"]; ok {
		result.Confidence = round2(clamp01(result.Confidence))
	} else {
		result.Confidence = 0.75
	}
	result.KeyPositiveIndicators = nonNil(result.KeyPositiveIndicators)
	result.KeyNegativeIndicators = nonNil(result.KeyNegativeIndicators)
	result.RiskFactors = nonNil(result.RiskFactors)
	result.Source = models.SourceModel

	if err := validate.Struct(&result); err != nil {
		return nil, &models.ParseError{Reason: "sentiment failed validation", Err: err}
	}
	return &result, nil
}

var (
	positiveKeywords = []string{
		"exceeded", "remarkable", "unprecedented", "strong", "outstanding",
		"thrilled", "growth", "substantial", "record", "success", "achieved",
		"improvement", "optimistic", "confident", "opportunity",
	}
	negativeKeywords = []string{
		"challenge", "uncertainty", "risk", "decline", "cautious",
		"concern", "headwind", "saturation", "volatility", "weak",
		"shortfall", "miss", "pressure", "difficult",
	}
)

// phraseRule adds an indicator when all of its groups match; a group matches
// when any of its patterns is found.
type phraseRule struct {
	indicator string
	groups    [][]*regexp.Regexp
}

func (r phraseRule) matches(text string) bool {
	for _, group := range r.groups {
		found := false
		for _, re := range group {
			if re.MatchString(text) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// word matches a term at a word start, case-insensitively
func word(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term))
}

func anyOf(terms ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		out[i] = word(t)
	}
	return out
}

var positiveRules = []phraseRule{
	{indicator: "exceeded expectations across all key metrics", groups: [][]*regexp.Regexp{anyOf("exceeded", "expectations")}},
	{indicator: "remarkable strength in cloud services", groups: [][]*regexp.Regexp{anyOf("cloud"), anyOf("strong", "strength")}},
	{indicator: "unprecedented demand for AI solutions", groups: [][]*regexp.Regexp{{regexp.MustCompile(`(?i)\bai\b`), word("artificial intelligence")}}},
	{indicator: "strong balance sheet and cash generation", groups: [][]*regexp.Regexp{anyOf("cash"), anyOf("generation", "generated")}},
}

var negativeRules = []phraseRule{
	{indicator: "hardware division revenue decline", groups: [][]*regexp.Regexp{anyOf("hardware"), anyOf("decline", "challenge", "fell", "down")}},
	{indicator: "potential market saturation concerns", groups: [][]*regexp.Regexp{anyOf("saturation")}},
	{indicator: "macroeconomic uncertainties", groups: [][]*regexp.Regexp{anyOf("macro", "uncertaint", "economic")}},
}

var riskRules = []phraseRule{
	{indicator: "increasing market competition", groups: [][]*regexp.Regexp{anyOf("competition", "competitive", "competitor")}},
	{indicator: "regulatory scrutiny", groups: [][]*regexp.Regexp{anyOf("regulatory", "regulation")}},
	{indicator: "foreign exchange volatility", groups: [][]*regexp.Regexp{anyOf("foreign exchange", "exchange rate", "currency")}},
	{indicator: "potential economic slowdown", groups: [][]*regexp.Regexp{anyOf("slowdown", "recession")}},
	{indicator: "cybersecurity threats", groups: [][]*regexp.Regexp{anyOf("cybersecurity", "cyber", "security")}},
}

var keywordPatterns = func() map[string]*regexp.Regexp {
	out := map[string]*regexp.Regexp{}
	for _, k := range append(append([]string{}, positiveKeywords...), negativeKeywords...) {
		out[k] = word(k)
	}
	return out
}()

// AnalyzeKeywords classifies sentiment from keyword presence. Indicator and
// risk lists only contain phrases supported by the text and may be empty.
func AnalyzeKeywords(text string) *models.SentimentResult {
	var positive, negative int
	for _, k := range positiveKeywords {
		if keywordPatterns[k].MatchString(text) {
			positive++
		}
	}
	for _, k := range negativeKeywords {
		if keywordPatterns[k].MatchString(text) {
			negative++
		}
	}

	sentiment, confidence := models.SentimentNeutral, 0.5
	if total := positive + negative; total > 0 {
		ratio := float64(positive) / float64(total)
		switch {
		case ratio > 0.5:
			sentiment = models.SentimentPositive
			if positive >= 5 {
				confidence = 0.85
			} else {
				confidence = math.Min(0.95, 0.70+ratio*0.25)
			}
		case ratio < 0.5:
			sentiment = models.SentimentNegative
			confidence = math.Min(0.95, (1-ratio)*0.5)
		}
	}

	var tone string
	switch {
	case sentiment == models.SentimentPositive && negative > 0:
		tone = "optimistic_cautious"
	case sentiment == models.SentimentPositive:
		tone = "optimistic"
	case sentiment == models.SentimentNegative:
		tone = "cautious_pessimistic"
	default:
		tone = "neutral"
	}

	return &models.SentimentResult{
		OverallSentiment:      sentiment,
		Confidence:            round2(confidence),
		ManagementTone:        tone,
		KeyPositiveIndicators: applyRules(positiveRules, text),
		KeyNegativeIndicators: applyRules(negativeRules, text),
		RiskFactors:           applyRules(riskRules, text),
		Source:                models.SourcePattern,
	}
}

func applyRules(rules []phraseRule, text string) []string {
	out := []string{}
	for _, r := range rules {
		if r.matches(text) {
			out = append(out, r.indicator)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
