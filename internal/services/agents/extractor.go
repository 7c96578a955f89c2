package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// Extractor pulls structured financial metrics from report text.
//
// The model is asked for the metrics shape first. When its output cannot be
// parsed, or carries no headline figures, the regex scan over the raw text is
// used instead. A backend failure is returned as FAILED so it can be retried.
type Extractor struct {
	llm    interfaces.GenerationService
	logger arbor.ILogger
}

// NewExtractor creates the extraction step. llm may be nil, in which case
// only the pattern scan runs.
func NewExtractor(llm interfaces.GenerationService, logger arbor.ILogger) *Extractor {
	return &Extractor{llm: llm, logger: logger}
}

// Name returns data_extractor
func (e *Extractor) Name() models.StepName {
	return models.StepExtraction
}

// Description returns a one line summary
func (e *Extractor) Description() string {
	return "Extracts revenue, earnings, margins, segments and guidance from the report"
}

// Validate requires non-blank report text
func (e *Extractor) Validate(input StepInput) bool {
	return strings.TrimSpace(input.ReportText) != ""
}

// Process extracts the metrics
func (e *Extractor) Process(ctx context.Context, input StepInput, rc RunContext) models.StepResult {
	start := time.Now()
	logger := rc.logger(e.logger)

	var metrics *models.MetricsResult
	if e.llm != nil {
		raw, err := e.llm.ExtractStructured(ctx, extractionPrompt(input.ReportText), metricsShape,
			interfaces.GenerateOptions{Temperature: 0, MaxOutputTokens: 1500})
		if err != nil && isGenerationError(err) {
			logger.Warn().Err(err).Int("attempt", rc.Attempt).Msg("Metrics generation failed")
			return generationFailure(e.Name(), start, err)
		}

		if err == nil {
			metrics, err = decodeMetrics(raw)
		}
		if err == nil && !metrics.HasFinancials() {
			err = fmt.Errorf("model output has no financial figures")
		}
		if err != nil {
			logger.Warn().Str("reason", describeFallback(err)).Msg("Model metrics unusable, using pattern extraction")
			metrics = nil
		}
	}

	if metrics == nil {
		metrics = ExtractMetricsFromText(input.ReportText)
	}

	if !metrics.HasFinancials() {
		return models.Failed(e.Name(), time.Since(start), "no financial metrics found in report")
	}

	logger.Debug().
		Str("source", metrics.Source).
		Int("segments", len(metrics.Segments)).
		Bool("beat_estimate", metrics.BeatEstimate()).
		Msg("Metrics extracted")

	return models.Succeeded(e.Name(), models.StepData{Metrics: metrics}, time.Since(start))
}

// decodeMetrics converts a model mapping into MetricsResult. It accepts the
// flat shape and the nested financial_metrics / segment_performance /
// forward_guidance layout, and normalises percentages to fractions.
func decodeMetrics(raw map[string]interface{}) (*models.MetricsResult, error) {
	flat := flattenMetrics(raw)

	data, err := json.Marshal(flat)
	if err != nil {
		return nil, &models.ParseError{Reason: "metrics not serialisable", Err: err}
	}

	var metrics models.MetricsResult
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, &models.ParseError{Reason: "metrics have unexpected types", Snippet: truncate(string(data), 200), Err: err}
	}

	normaliseMetrics(&metrics)
	metrics.Source = models.SourceModel
	return &metrics, nil
}

func flattenMetrics(raw map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		flat[k] = v
	}

	if nested, ok := raw["financial_metrics"].(map[string]interface{}); ok {
		for k, v := range nested {
			if _, exists := flat[k]; !exists {
				flat[k] = v
			}
		}
		delete(flat, "financial_metrics")
	}

	if segments, ok := raw["segment_performance"]; ok {
		if _, exists := flat["segments"]; !exists {
			flat["segments"] = segments
		}
		delete(flat, "segment_performance")
	}

	if guidance, ok := raw["forward_guidance"].(map[string]interface{}); ok {
		if _, exists := flat["guidance"]; !exists {
			flat["guidance"] = flattenGuidance(guidance)
		}
		delete(flat, "forward_guidance")
	}

	return flat
}

// flattenGuidance maps {q4_2024: {revenue_range, eps_range}, full_year_2024: {revenue_growth}}
// onto the flat guidance fields
func flattenGuidance(g map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range g {
		switch {
		case k == "q4_revenue_range" || k == "q4_eps_range" || k == "full_year_growth":
			out[k] = v
		case strings.HasPrefix(k, "q4"):
			if period, ok := v.(map[string]interface{}); ok {
				if r, ok := period["revenue_range"]; ok {
					out["q4_revenue_range"] = r
				}
				if r, ok := period["eps_range"]; ok {
					out["q4_eps_range"] = r
				}
			}
		case strings.HasPrefix(k, "full_year"):
			if period, ok := v.(map[string]interface{}); ok {
				if r, ok := period["revenue_growth"]; ok {
					out["full_year_growth"] = r
				}
			}
		}
	}
	return out
}

func normaliseMetrics(m *models.MetricsResult) {
	for _, amount := range []*models.Amount{m.Revenue, m.NetIncome, m.FreeCashFlow} {
		if amount != nil && amount.YoYChange != nil {
			v := percentToFraction(*amount.YoYChange)
			amount.YoYChange = &v
		}
	}

	if m.EPS != nil && m.EPS.AnalystEstimate != nil {
		m.EPS.BeatEstimate = m.EPS.Value > *m.EPS.AnalystEstimate
	}

	if m.OperatingMargin != nil {
		m.OperatingMargin.Current = toFraction(m.OperatingMargin.Current)
		if m.OperatingMargin.Previous != nil {
			v := toFraction(*m.OperatingMargin.Previous)
			m.OperatingMargin.Previous = &v
		}
		m.OperatingMargin.Trend = marginTrend(m.OperatingMargin)
	}

	for key, segment := range m.Segments {
		if segment.GrowthRate != nil {
			v := percentToFraction(*segment.GrowthRate)
			segment.GrowthRate = &v
			m.Segments[key] = segment
		}
	}

	if m.Guidance != nil {
		for i, v := range m.Guidance.FullYearGrowth {
			m.Guidance.FullYearGrowth[i] = toFraction(v)
		}
	}
}

// percentToFraction handles signed growth written as percent points
func percentToFraction(v float64) float64 {
	if v > 1 || v < -1 {
		return v / 100
	}
	return v
}
