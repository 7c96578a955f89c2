package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/models"
)

// Step is one stage of the analysis pipeline.
//
// Validate is a pure check of the input. Process does the work and always
// returns a SUCCESS or FAILED result; it never panics and never mutates run
// state. The orchestrator merges StepResult.Data into the run.
type Step interface {
	// Name returns the step identifier
	Name() models.StepName
	// Description is a one line summary for listings
	Description() string
	// Validate reports whether the input carries what the step requires
	Validate(input StepInput) bool
	// Process runs the step
	Process(ctx context.Context, input StepInput, rc RunContext) models.StepResult
}

// StepInput is the read-only view of the run a step receives.
// Upstream fields may be nil; every step tolerates that.
type StepInput struct {
	ReportText string
	Metrics    *models.MetricsResult
	Sentiment  *models.SentimentResult
}

// RunContext is ambient per-run context
type RunContext struct {
	RunID   string
	Attempt int
	Options models.RunOptions
	Logger  arbor.ILogger
}

// logger returns the run logger or a fallback
func (rc RunContext) logger(fallback arbor.ILogger) arbor.ILogger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return fallback
}

// validate is shared by all steps for checking decoded model output
var validate = validator.New()

// generationFailure converts a generation error into a FAILED result.
// Rate limit hints are carried so the orchestrator can wait long enough.
func generationFailure(name models.StepName, start time.Time, err error) models.StepResult {
	result := models.Failed(name, time.Since(start), err.Error())

	var genErr *models.GenerationError
	if errors.As(err, &genErr) && genErr.RateLimited {
		result.RetryAfter = genErr.RetryAfter
	}
	return result
}

// isGenerationError reports whether err came from the backend call itself
func isGenerationError(err error) bool {
	var genErr *models.GenerationError
	return errors.As(err, &genErr)
}

// describeFallback is the log reason when model output is not used
func describeFallback(err error) string {
	var parseErr *models.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Reason
	}
	return fmt.Sprintf("%v", err)
}
