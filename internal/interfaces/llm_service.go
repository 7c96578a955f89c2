package interfaces

import (
	"context"
)

// LLMMode represents the operational mode of the generation service
type LLMMode string

const (
	// LLMModeCloud indicates the service uses cloud-based LLM APIs
	LLMModeCloud LLMMode = "cloud"

	// LLMModeOffline indicates the service generates deterministic output in-process
	LLMModeOffline LLMMode = "offline"
)

// GenerateOptions are the sampling parameters for one generation call
type GenerateOptions struct {
	// Temperature controls sampling randomness (0 = most deterministic)
	Temperature float32

	// MaxOutputTokens bounds the length of the generated text
	MaxOutputTokens int

	// System is an optional system instruction
	System string
}

// GenerationService defines the contract every pipeline step uses to talk to a
// text-generation backend. Implementations wrap Anthropic Claude, Google Gemini
// or the deterministic offline generator used in tests.
type GenerationService interface {
	// GenerateText returns free text for a prompt.
	//
	// Parameters:
	//   - ctx: Context for cancellation and the per-call timeout
	//   - prompt: User prompt
	//   - opts: Sampling parameters
	//
	// Returns:
	//   - string: Generated text, never empty on success
	//   - error: *models.GenerationError when the backend is unreachable,
	//     rate limited, times out or returns no content
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ExtractStructured generates text and parses the first JSON object in it.
	// The shape describes the expected fields; providers that support response
	// schemas pass it through, the others include it in the prompt.
	//
	// Returns:
	//   - map[string]interface{}: The decoded object
	//   - error: *models.GenerationError from the underlying call, or
	//     *models.ParseError when no valid JSON object can be recovered
	ExtractStructured(ctx context.Context, prompt string, shape map[string]interface{}, opts GenerateOptions) (map[string]interface{}, error)

	// HealthCheck verifies the service is operational
	HealthCheck(ctx context.Context) error

	// Provider returns the provider name ("claude", "gemini", "offline")
	Provider() string

	// GetMode returns whether the service calls a cloud API
	GetMode() LLMMode

	// Close releases resources
	Close() error
}
