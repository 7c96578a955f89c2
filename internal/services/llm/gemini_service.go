package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/interfaces"
)

// GeminiService implements GenerationService using Google Gemini.
// Structured calls pass the expected shape as a response schema.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGeminiService creates a new Gemini generation service
func NewGeminiService(ctx context.Context, geminiConfig *common.GeminiConfig, timeout time.Duration, logger arbor.ILogger) (*GeminiService, error) {
	apiKey, err := common.ResolveAPIKey("gemini_api_key", geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required (set via TALLY_GEMINI_API_KEY, GEMINI_API_KEY, or gemini.api_key in config): %w", err)
	}

	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("model", geminiConfig.Model).
		Dur("timeout", timeout).
		Str("rate_limit", geminiConfig.RateLimit).
		Msg("Gemini generation service initialized")

	return &GeminiService{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		limiter: newLimiter(geminiConfig.RateLimit),
		timeout: timeout,
	}, nil
}

// GenerateText returns free text for a prompt
func (s *GeminiService) GenerateText(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	return s.generate(ctx, prompt, opts, nil)
}

// ExtractStructured requests JSON output constrained by the shape and parses it
func (s *GeminiService) ExtractStructured(ctx context.Context, prompt string, shape map[string]interface{}, opts interfaces.GenerateOptions) (map[string]interface{}, error) {
	schema, err := convertToGenaiSchema(shape)
	if err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}

	text, err := s.generate(ctx, prompt, opts, schema)
	if err != nil {
		return nil, err
	}
	return common.ExtractJSONObject(text)
}

func (s *GeminiService) generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions, schema *genai.Schema) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", newGenerationError(s.Provider(), "generate", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(opts.Temperature),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := s.client.Models.GenerateContent(callCtx, s.config.Model, contents, config)
	if err != nil {
		genErr := newGenerationError(s.Provider(), "generate", err)
		s.logger.Warn().
			Err(err).
			Bool("rate_limited", genErr.RateLimited).
			Dur("retry_after", genErr.RetryAfter).
			Msg("Gemini API call failed")
		return "", genErr
	}

	// Use the first candidate with non-empty text
	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if strings.TrimSpace(response.String()) == "" {
		return "", newGenerationError(s.Provider(), "generate", errEmptyResponse)
	}

	return response.String(), nil
}

// HealthCheck sends a minimal request to the API
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.GenerateText(healthCtx, "ping", interfaces.GenerateOptions{MaxOutputTokens: 8}); err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	return nil
}

// Provider returns "gemini"
func (s *GeminiService) Provider() string {
	return string(common.LLMProviderGemini)
}

// GetMode returns LLMModeCloud
func (s *GeminiService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeCloud
}

// Close releases resources
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini generation service")
	s.client = nil
	return nil
}

// convertToGenaiSchema converts a JSON schema map to a genai.Schema.
// Returns nil for an empty map.
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		default:
			return nil, fmt.Errorf("unsupported schema type %q", typeStr)
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	switch enumVals := schemaMap["enum"].(type) {
	case []string:
		schema.Enum = enumVals
	case []interface{}:
		for _, v := range enumVals {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	switch reqVals := schemaMap["required"].(type) {
	case []string:
		schema.Required = reqVals
	case []interface{}:
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if minVal, ok := schemaMap["minimum"].(float64); ok {
		schema.Minimum = &minVal
	}
	if maxVal, ok := schemaMap["maximum"].(float64); ok {
		schema.Maximum = &maxVal
	}

	if itemsMap, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(itemsMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert items schema: %w", err)
		}
		schema.Items = itemSchema
	}

	if propsMap, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(propsMap))
		for propName, propVal := range propsMap {
			propMap, ok := propVal.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema, err := convertToGenaiSchema(propMap)
			if err != nil {
				return nil, fmt.Errorf("failed to convert property '%s': %w", propName, err)
			}
			schema.Properties[propName] = propSchema
		}
	}

	return schema, nil
}
