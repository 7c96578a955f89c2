package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/interfaces"
)

// PatternProvider names the provider reported when no generation backend is
// configured and every step runs on regex and keyword analysis of the report.
const PatternProvider = "pattern"

// NewGenerationService creates the generation service selected by llm.default_provider.
// It returns a nil service for the offline provider and for a cloud provider
// without a resolvable API key; callers then build the steps in pattern mode.
func NewGenerationService(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (interfaces.GenerationService, error) {
	timeout := common.ParseDurationOr(cfg.Pipeline.StepTimeout, 60*time.Second)

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Dur("step_timeout", timeout).
		Msg("Initializing generation service")

	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderOffline:
		logger.Info().Msg("Offline mode, steps use pattern analysis of the report text")
		return nil, nil

	case common.LLMProviderClaude:
		service, err := NewClaudeService(&cfg.Claude, timeout, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Claude unavailable, steps use pattern analysis of the report text")
			return nil, nil
		}
		return service, nil

	case common.LLMProviderGemini:
		service, err := NewGeminiService(ctx, &cfg.Gemini, timeout, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Gemini unavailable, steps use pattern analysis of the report text")
			return nil, nil
		}
		return service, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.DefaultProvider)
	}
}
