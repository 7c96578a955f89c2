package models

import (
	"fmt"
	"time"
)

// InvalidInputError is returned by the entry point for structurally invalid input
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ValidationSkip records that a step's Validate returned false. Non-fatal.
type ValidationSkip struct {
	Step   StepName
	Reason string
}

func (e *ValidationSkip) Error() string {
	return fmt.Sprintf("%s skipped: %s", e.Step, e.Reason)
}

// GenerationError is a failed or timed out generation backend call. Retryable.
type GenerationError struct {
	Provider    string
	Op          string
	RateLimited bool
	RetryAfter  time.Duration
	Err         error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	if e.RateLimited {
		msg += " (rate limited)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ParseError means the generated text could not be coerced into the requested shape
type ParseError struct {
	Reason  string
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StepContractViolation is a step that panicked, returned a non-terminal
// status from Process or wrote output it does not own. It is a defect and
// aborts the run.
type StepContractViolation struct {
	Step   StepName
	Panic  interface{}
	Status StepStatus
	Reason string
	Stack  string
}

func (e *StepContractViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("step %s violated its contract: %s", e.Step, e.Reason)
	}
	if e.Panic != nil {
		return fmt.Sprintf("step %s violated its contract: panic: %v", e.Step, e.Panic)
	}
	return fmt.Sprintf("step %s violated its contract: returned non-terminal status %q", e.Step, e.Status)
}
