package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/interfaces"
)

// ClaudeService implements GenerationService using the Anthropic Messages API.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  anthropic.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClaudeService creates a new Claude generation service.
//
// Parameters:
//   - claudeConfig: Claude configuration with API key and model settings
//   - timeout: Per-call timeout applied to every request
//   - logger: Structured logger for service operations
//   - requestOptions: Extra SDK options (base URL, retries) appended after the API key
//
// Returns:
//   - *ClaudeService: Initialized service ready for use
//   - error: nil on success, error when no API key can be resolved
func NewClaudeService(claudeConfig *common.ClaudeConfig, timeout time.Duration, logger arbor.ILogger, requestOptions ...option.RequestOption) (*ClaudeService, error) {
	apiKey, err := common.ResolveAPIKey("anthropic_api_key", claudeConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required for Claude service (set via ANTHROPIC_API_KEY, TALLY_CLAUDE_API_KEY, or claude.api_key in config): %w", err)
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = common.DefaultClaudeModel
	}
	if claudeConfig.MaxTokens <= 0 {
		claudeConfig.MaxTokens = 4096
	}

	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, requestOptions...)

	service := &ClaudeService{
		config:  claudeConfig,
		logger:  logger,
		client:  anthropic.NewClient(opts...),
		limiter: newLimiter(claudeConfig.RateLimit),
		timeout: timeout,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", claudeConfig.MaxTokens).
		Str("rate_limit", claudeConfig.RateLimit).
		Msg("Claude generation service initialized")

	return service, nil
}

// GenerateText sends one user message and returns the concatenated text blocks.
func (s *ClaudeService) GenerateText(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", newGenerationError(s.Provider(), "generate", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 || maxTokens > s.config.MaxTokens {
		maxTokens = s.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.config.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(opts.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	startTime := time.Now()
	resp, err := s.client.Messages.New(callCtx, params)
	if err != nil {
		genErr := newGenerationError(s.Provider(), "generate", err)
		s.logger.Warn().
			Err(err).
			Bool("rate_limited", genErr.RateLimited).
			Dur("retry_after", genErr.RetryAfter).
			Msg("Claude API call failed")
		return "", genErr
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(response.String()) == "" {
		return "", newGenerationError(s.Provider(), "generate", errEmptyResponse)
	}

	s.logger.Debug().
		Int("prompt_length", len(prompt)).
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return response.String(), nil
}

// ExtractStructured appends the JSON shape to the prompt and parses the reply.
func (s *ClaudeService) ExtractStructured(ctx context.Context, prompt string, shape map[string]interface{}, opts interfaces.GenerateOptions) (map[string]interface{}, error) {
	text, err := s.GenerateText(ctx, structuredPrompt(prompt, shape), opts)
	if err != nil {
		return nil, err
	}
	return common.ExtractJSONObject(text)
}

// HealthCheck sends a minimal request to the API
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.GenerateText(healthCtx, "ping", interfaces.GenerateOptions{MaxOutputTokens: 8}); err != nil {
		return fmt.Errorf("Claude health check failed: %w", err)
	}
	return nil
}

// Provider returns "claude"
func (s *ClaudeService) Provider() string {
	return string(common.LLMProviderClaude)
}

// GetMode returns LLMModeCloud
func (s *ClaudeService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeCloud
}

// Close releases resources. The Claude client needs no explicit cleanup.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude generation service")
	return nil
}
