// -----------------------------------------------------------------------
// Step - Pipeline step identity, status and per-invocation result
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// StepName identifies a pipeline step. The set is fixed at build time.
type StepName string

const (
	StepCoordinator StepName = "coordinator"
	StepExtraction  StepName = "data_extractor"
	StepSentiment   StepName = "sentiment_analyzer"
	StepSummary     StepName = "summary_generator"
)

// IsValid checks if the StepName is a known step
func (s StepName) IsValid() bool {
	switch s {
	case StepCoordinator, StepExtraction, StepSentiment, StepSummary:
		return true
	}
	return false
}

// String returns the string representation of the StepName
func (s StepName) String() string {
	return string(s)
}

// PipelineSteps returns the processing steps in execution order.
// The coordinator is not included; it runs before any step.
func PipelineSteps() []StepName {
	return []StepName{StepExtraction, StepSentiment, StepSummary}
}

// StepStatus is the state of one step slot during a run.
//
// READY -> RUNNING -> {SUCCESS | FAILED}; FAILED may move to RETRY which
// re-enters RUNNING. A step returns only SUCCESS or FAILED from Process.
type StepStatus string

const (
	StepStatusReady   StepStatus = "READY"
	StepStatusRunning StepStatus = "RUNNING"
	StepStatusSuccess StepStatus = "SUCCESS"
	StepStatusFailed  StepStatus = "FAILED"
	StepStatusRetry   StepStatus = "RETRY"
	StepStatusSkipped StepStatus = "SKIPPED"
)

// IsTerminal reports whether a step may legitimately return this status from Process
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusFailed
}

// StepData carries the output of one step. A step fills only the field it owns.
type StepData struct {
	Metrics   *MetricsResult   `json:"metrics,omitempty"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
	Summary   *SummaryResult   `json:"summary,omitempty"`
}

// IsEmpty reports whether no field is set
func (d StepData) IsEmpty() bool {
	return d.Metrics == nil && d.Sentiment == nil && d.Summary == nil
}

// StepResult is the value returned by one Process invocation
type StepResult struct {
	StepName StepName      `json:"agent_name"`
	Status   StepStatus    `json:"status"`
	Data     StepData      `json:"data"`
	Errors   []string      `json:"errors"`
	Elapsed  time.Duration `json:"processing_time"`

	// RetryAfter is a provider-suggested delay (rate limiting). Zero when unknown.
	RetryAfter time.Duration `json:"-"`
}

// Succeeded builds a SUCCESS result
func Succeeded(name StepName, data StepData, elapsed time.Duration) StepResult {
	return StepResult{
		StepName: name,
		Status:   StepStatusSuccess,
		Data:     data,
		Errors:   []string{},
		Elapsed:  elapsed,
	}
}

// Failed builds a FAILED result with at least one error message
func Failed(name StepName, elapsed time.Duration, errs ...string) StepResult {
	if len(errs) == 0 {
		errs = []string{"step failed without a reason"}
	}
	return StepResult{
		StepName: name,
		Status:   StepStatusFailed,
		Errors:   errs,
		Elapsed:  elapsed,
	}
}

// StepInfo describes a registered step for listings
type StepInfo struct {
	Name        StepName `json:"name"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
}

// StepOutcome is the per-step bookkeeping recorded in run metadata
type StepOutcome struct {
	Step     StepName   `json:"step"`
	Status   StepStatus `json:"status"`
	Attempts int        `json:"attempts"`
	Elapsed  int64      `json:"elapsed_ms"`
}
