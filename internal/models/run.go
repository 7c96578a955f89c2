// -----------------------------------------------------------------------
// Run - Typed shared state threaded through one analysis run
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Run status values
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// Step error kinds
const (
	ErrorKindValidationSkip = "validation_skip"
	ErrorKindStepFailed     = "step_failed"
)

// RunOptions are caller supplied per-run settings (input_options)
type RunOptions struct {
	MaxRetries          *int                   `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	ParallelIndependent *bool                  `json:"parallel_independent,omitempty"`
	Extra               map[string]interface{} `json:"extra,omitempty"`
}

// StepError is one entry in the run's append-only error list
type StepError struct {
	Step     StepName `json:"step"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Attempts int      `json:"attempts"`
}

func (e StepError) String() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// ExecutionPlan is produced by the coordinator before any step runs
type ExecutionPlan struct {
	Steps         []StepName `json:"agents_to_execute"`
	ReportLength  int        `json:"report_length"`
	InitializedAt time.Time  `json:"initialized_at"`
	Parallel      bool       `json:"parallel_independent"`
	MaxRetries    int        `json:"max_retries"`
}

// RunMetadata is bookkeeping owned by the orchestrator
type RunMetadata struct {
	RunID         string         `json:"run_id"`
	Status        string         `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at"`
	DurationMs    int64          `json:"duration_ms"`
	Steps         []StepName     `json:"steps"`
	StepOutcomes  []StepOutcome  `json:"step_outcomes"`
	Provider      string         `json:"provider,omitempty"`
	ExecutionPlan *ExecutionPlan `json:"execution_plan,omitempty"`
}

// Run is the shared state of one analysis. It is owned by a single run and
// populated monotonically: a set field is never replaced or cleared.
type Run struct {
	InputText    string
	InputOptions RunOptions
	Metrics      *MetricsResult
	Sentiment    *SentimentResult
	Summary      *SummaryResult
	Metadata     RunMetadata
	Errors       []StepError
}

// NewRun creates the state for one run with every output at its default
func NewRun(runID, text string, options RunOptions) *Run {
	return &Run{
		InputText:    text,
		InputOptions: options,
		Metadata: RunMetadata{
			RunID:        runID,
			Status:       RunStatusRunning,
			StartedAt:    time.Now(),
			Steps:        []StepName{},
			StepOutcomes: []StepOutcome{},
		},
		Errors: []StepError{},
	}
}

// Merge copies a successful step's data into the run. Each step may only
// write the field it owns, and only once.
func (r *Run) Merge(step StepName, data StepData) error {
	switch step {
	case StepExtraction:
		if data.Sentiment != nil || data.Summary != nil {
			return fmt.Errorf("%s wrote fields it does not own", step)
		}
		if data.Metrics == nil {
			return nil
		}
		if r.Metrics != nil {
			return fmt.Errorf("metrics already set")
		}
		r.Metrics = data.Metrics
	case StepSentiment:
		if data.Metrics != nil || data.Summary != nil {
			return fmt.Errorf("%s wrote fields it does not own", step)
		}
		if data.Sentiment == nil {
			return nil
		}
		if r.Sentiment != nil {
			return fmt.Errorf("sentiment already set")
		}
		r.Sentiment = data.Sentiment
	case StepSummary:
		if data.Metrics != nil || data.Sentiment != nil {
			return fmt.Errorf("%s wrote fields it does not own", step)
		}
		if data.Summary == nil {
			return nil
		}
		if r.Summary != nil {
			return fmt.Errorf("summary already set")
		}
		r.Summary = data.Summary
	default:
		return fmt.Errorf("unknown step %q", step)
	}
	return nil
}

// AppendError adds an entry to the error list
func (r *Run) AppendError(e StepError) {
	r.Errors = append(r.Errors, e)
}

// HasOutput reports whether any step output is present
func (r *Run) HasOutput() bool {
	return r.Metrics != nil || r.Sentiment != nil || r.Summary != nil
}

// Finalize sets the terminal status and timing
func (r *Run) Finalize(completedAt time.Time) {
	switch {
	case len(r.Errors) == 0:
		r.Metadata.Status = RunStatusSuccess
	case r.HasOutput():
		r.Metadata.Status = RunStatusPartial
	default:
		r.Metadata.Status = RunStatusFailed
	}
	r.Metadata.CompletedAt = completedAt
	r.Metadata.DurationMs = completedAt.Sub(r.Metadata.StartedAt).Milliseconds()
}

// Result returns the caller facing view of the run
func (r *Run) Result() *AnalysisResult {
	errs := make([]StepError, len(r.Errors))
	copy(errs, r.Errors)
	return &AnalysisResult{
		Metrics:     r.Metrics,
		Sentiment:   r.Sentiment,
		Summary:     r.Summary,
		RunMetadata: r.Metadata,
		Errors:      errs,
	}
}

// AnalysisResult is the nested mapping returned by a run
type AnalysisResult struct {
	Metrics     *MetricsResult   `json:"metrics"`
	Sentiment   *SentimentResult `json:"sentiment"`
	Summary     *SummaryResult   `json:"summary"`
	RunMetadata RunMetadata      `json:"run_metadata"`
	Errors      []StepError      `json:"errors"`
}

// ErrorsFor returns the error entries attributed to a step
func (a *AnalysisResult) ErrorsFor(step StepName) []StepError {
	var out []StepError
	for _, e := range a.Errors {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

// MarshalJSON renders absent sub-results as {} and a nil error list as []
func (a AnalysisResult) MarshalJSON() ([]byte, error) {
	emptyObject := json.RawMessage("{}")

	encode := func(v interface{}, isNil bool) (json.RawMessage, error) {
		if isNil {
			return emptyObject, nil
		}
		return json.Marshal(v)
	}

	metrics, err := encode(a.Metrics, a.Metrics == nil)
	if err != nil {
		return nil, err
	}
	sentiment, err := encode(a.Sentiment, a.Sentiment == nil)
	if err != nil {
		return nil, err
	}
	summary, err := encode(a.Summary, a.Summary == nil)
	if err != nil {
		return nil, err
	}

	errs := a.Errors
	if errs == nil {
		errs = []StepError{}
	}

	return json.Marshal(struct {
		Metrics     json.RawMessage `json:"metrics"`
		Sentiment   json.RawMessage `json:"sentiment"`
		Summary     json.RawMessage `json:"summary"`
		RunMetadata RunMetadata     `json:"run_metadata"`
		Errors      []StepError     `json:"errors"`
	}{metrics, sentiment, summary, a.RunMetadata, errs})
}

// ToMap converts the result to a generic map (used for YAML output)
func (a *AnalysisResult) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return result, nil
}
