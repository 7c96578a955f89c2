package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMerge_OwnershipAndMonotonic(t *testing.T) {
	run := NewRun("run_1", "text", RunOptions{})

	metrics := &MetricsResult{Revenue: &Amount{Value: 15.2}}
	require.NoError(t, run.Merge(StepExtraction, StepData{Metrics: metrics}))
	assert.Same(t, metrics, run.Metrics)

	// A second write to the same field is refused and the first value kept
	err := run.Merge(StepExtraction, StepData{Metrics: &MetricsResult{Revenue: &Amount{Value: 1}}})
	assert.Error(t, err)
	assert.Equal(t, 15.2, run.Metrics.Revenue.Value)

	// A step cannot write a field it does not own
	err = run.Merge(StepSentiment, StepData{Metrics: &MetricsResult{}})
	assert.Error(t, err)

	// Empty data is a no-op
	assert.NoError(t, run.Merge(StepSummary, StepData{}))
	assert.Nil(t, run.Summary)

	assert.Error(t, run.Merge(StepCoordinator, StepData{}))
}

func TestRunFinalize_Status(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Run)
		expected string
	}{
		{
			name:     "no errors",
			setup:    func(r *Run) { r.Metrics = &MetricsResult{} },
			expected: RunStatusSuccess,
		},
		{
			name: "errors with some output",
			setup: func(r *Run) {
				r.Metrics = &MetricsResult{}
				r.AppendError(StepError{Step: StepSentiment, Kind: ErrorKindStepFailed})
			},
			expected: RunStatusPartial,
		},
		{
			name: "errors without output",
			setup: func(r *Run) {
				r.AppendError(StepError{Step: StepExtraction, Kind: ErrorKindStepFailed})
			},
			expected: RunStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun("run_1", "text", RunOptions{})
			tt.setup(run)
			run.Finalize(run.Metadata.StartedAt.Add(1500 * time.Millisecond))

			assert.Equal(t, tt.expected, run.Metadata.Status)
			assert.Equal(t, int64(1500), run.Metadata.DurationMs)
		})
	}
}

func TestAnalysisResult_MarshalJSON_EmptySubResults(t *testing.T) {
	run := NewRun("run_1", "text", RunOptions{})
	run.Finalize(time.Now())

	data, err := json.Marshal(run.Result())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, map[string]interface{}{}, decoded["metrics"])
	assert.Equal(t, map[string]interface{}{}, decoded["sentiment"])
	assert.Equal(t, map[string]interface{}{}, decoded["summary"])
	assert.Equal(t, []interface{}{}, decoded["errors"])

	meta := decoded["run_metadata"].(map[string]interface{})
	assert.Equal(t, "run_1", meta["run_id"])
	assert.Equal(t, RunStatusSuccess, meta["status"])
}

func TestAnalysisResult_ToMap(t *testing.T) {
	run := NewRun("run_1", "text", RunOptions{})
	run.Metrics = &MetricsResult{
		Revenue: &Amount{Value: 15.2, Unit: "billion USD"},
		EPS:     &EPS{Value: 4.52, BeatEstimate: true},
	}
	run.Finalize(time.Now())

	m, err := run.Result().ToMap()
	require.NoError(t, err)

	metrics := m["metrics"].(map[string]interface{})
	revenue := metrics["revenue"].(map[string]interface{})
	assert.Equal(t, 15.2, revenue["value"])
	assert.Equal(t, true, metrics["eps"].(map[string]interface{})["beat_estimate"])
}

func TestResult_ErrorsAreCopied(t *testing.T) {
	run := NewRun("run_1", "text", RunOptions{})
	run.AppendError(StepError{Step: StepSentiment, Message: "boom"})

	result := run.Result()
	run.AppendError(StepError{Step: StepSummary, Message: "later"})

	assert.Len(t, result.Errors, 1)
	assert.Len(t, result.ErrorsFor(StepSentiment), 1)
	assert.Empty(t, result.ErrorsFor(StepExtraction))
}

func TestErrorTypes_As(t *testing.T) {
	var genErr *GenerationError
	wrapped := fmt.Errorf("call failed: %w", &GenerationError{Provider: "claude", Op: "generate", RateLimited: true, Err: errors.New("429")})
	require.True(t, errors.As(wrapped, &genErr))
	assert.True(t, genErr.RateLimited)
	assert.Contains(t, wrapped.Error(), "rate limited")

	var parseErr *ParseError
	wrapped = fmt.Errorf("decode: %w", &ParseError{Reason: "no JSON object found"})
	require.True(t, errors.As(wrapped, &parseErr))

	violation := &StepContractViolation{Step: StepSentiment, Status: StepStatusRunning}
	assert.Contains(t, violation.Error(), "non-terminal")
	violation = &StepContractViolation{Step: StepSentiment, Panic: "nil map"}
	assert.Contains(t, violation.Error(), "panic: nil map")
}

func TestStepStatus_IsTerminal(t *testing.T) {
	assert.True(t, StepStatusSuccess.IsTerminal())
	assert.True(t, StepStatusFailed.IsTerminal())
	assert.False(t, StepStatusRunning.IsTerminal())
	assert.False(t, StepStatusRetry.IsTerminal())
	assert.False(t, StepStatusReady.IsTerminal())
}

func TestFailed_AlwaysHasReason(t *testing.T) {
	result := Failed(StepExtraction, time.Millisecond)
	assert.Equal(t, StepStatusFailed, result.Status)
	assert.NotEmpty(t, result.Errors)
}
