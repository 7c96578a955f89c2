package offline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/interfaces"
	"github.com/ternarybob/tally/internal/models"
)

// PromptKind is the task a prompt belongs to, recognised from its content
type PromptKind string

const (
	KindMetrics   PromptKind = "metrics"
	KindSentiment PromptKind = "sentiment"
	KindSummary   PromptKind = "summary"
	KindOther     PromptKind = "other"
)

// alwaysFail marks a kind that fails on every call
const alwaysFail = -1

// ErrScriptedFailure is returned (wrapped in a GenerationError) for scripted failures
var ErrScriptedFailure = errors.New("scripted generation failure")

// Classify recognises the prompt kind from its first line, which carries the
// task instruction. Report text further down is ignored.
func Classify(prompt string) PromptKind {
	p, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(prompt)), "\n")
	switch {
	case strings.Contains(p, "executive summary"):
		return KindSummary
	case strings.Contains(p, "sentiment"):
		return KindSentiment
	case strings.Contains(p, "financial metrics") || strings.Contains(p, "metric"):
		return KindMetrics
	}
	return KindOther
}

// DeterministicService is an in-process GenerationService returning fixed,
// schema-valid responses keyed on prompt content. Output does not depend on
// temperature. Failures can be scripted per prompt kind.
type DeterministicService struct {
	logger    arbor.ILogger
	mu        sync.Mutex
	responses map[PromptKind]string
	failures  map[PromptKind]int
	calls     map[PromptKind]int
}

// NewDeterministicService creates the offline service with the canned responses
func NewDeterministicService(logger arbor.ILogger) *DeterministicService {
	return &DeterministicService{
		logger: logger,
		responses: map[PromptKind]string{
			KindMetrics:   metricsResponse,
			KindSentiment: sentimentResponse,
			KindSummary:   summaryResponse,
			KindOther:     `{"status": "ok"}`,
		},
		failures: map[PromptKind]int{},
		calls:    map[PromptKind]int{},
	}
}

// WithResponse replaces the canned response for a kind
func (s *DeterministicService) WithResponse(kind PromptKind, text string) *DeterministicService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[kind] = text
	return s
}

// FailFirst makes the next n calls of a kind fail
func (s *DeterministicService) FailFirst(kind PromptKind, n int) *DeterministicService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = n
	return s
}

// AlwaysFail makes every call of a kind fail
func (s *DeterministicService) AlwaysFail(kind PromptKind) *DeterministicService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = alwaysFail
	return s
}

// Calls returns how many calls of a kind were made, failed ones included
func (s *DeterministicService) Calls(kind PromptKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// GenerateText returns the canned response for the prompt's kind
func (s *DeterministicService) GenerateText(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &models.GenerationError{Provider: s.Provider(), Op: "generate", Err: err}
	}

	kind := Classify(prompt)

	s.mu.Lock()
	s.calls[kind]++
	remaining := s.failures[kind]
	if remaining > 0 {
		s.failures[kind] = remaining - 1
	}
	response := s.responses[kind]
	s.mu.Unlock()

	if remaining != 0 {
		s.logger.Debug().Str("kind", string(kind)).Msg("Offline generation scripted failure")
		return "", &models.GenerationError{Provider: s.Provider(), Op: "generate", Err: ErrScriptedFailure}
	}

	return response, nil
}

// ExtractStructured returns the canned response parsed as a JSON object.
// Replacing a response with prose yields a ParseError, as a real model would.
func (s *DeterministicService) ExtractStructured(ctx context.Context, prompt string, shape map[string]interface{}, opts interfaces.GenerateOptions) (map[string]interface{}, error) {
	text, err := s.GenerateText(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return common.ExtractJSONObject(text)
}

// HealthCheck always succeeds
func (s *DeterministicService) HealthCheck(ctx context.Context) error {
	return nil
}

// Provider returns "offline"
func (s *DeterministicService) Provider() string {
	return string(common.LLMProviderOffline)
}

// GetMode returns LLMModeOffline
func (s *DeterministicService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeOffline
}

// Close is a no-op
func (s *DeterministicService) Close() error {
	return nil
}
