// -----------------------------------------------------------------------
// Orchestrator - Runs the analysis steps with bounded retry and
// partial-failure tolerance
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/tally/internal/common"
	"github.com/ternarybob/tally/internal/models"
	"github.com/ternarybob/tally/internal/services/agents"
)

// Steps is the fixed step registry, one implementation per kind
type Steps struct {
	Extractor  agents.Step
	Sentiment  agents.Step
	Summarizer agents.Step
}

// Orchestrator runs extraction, sentiment and summarization over one report.
//
// Each run owns its state. A failing step is retried up to the retry budget
// and then recorded in the run errors; the run always continues. Only blank
// input and step contract violations are returned as errors.
type Orchestrator struct {
	steps       Steps
	opts        Options
	coordinator *agents.Coordinator
	metrics     *Metrics
	sleep       func(ctx context.Context, d time.Duration) error
	provider    string
	logger      arbor.ILogger
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records pipeline metrics
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleeper replaces the backoff wait
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithProvider sets the generation provider name recorded in run metadata
func WithProvider(provider string) Option {
	return func(o *Orchestrator) { o.provider = provider }
}

// New creates an orchestrator
func New(steps Steps, opts Options, logger arbor.ILogger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:       steps,
		opts:        opts,
		coordinator: agents.NewCoordinator(logger),
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Steps lists the coordinator and the processing steps in execution order
func (o *Orchestrator) Steps() []models.StepInfo {
	infos := []models.StepInfo{{
		Name:        o.coordinator.Name(),
		Description: o.coordinator.Description(),
		Order:       0,
	}}
	for i, step := range o.ordered() {
		infos = append(infos, models.StepInfo{
			Name:        step.Name(),
			Description: step.Description(),
			Order:       i + 1,
		})
	}
	return infos
}

func (o *Orchestrator) ordered() []agents.Step {
	return []agents.Step{o.steps.Extractor, o.steps.Sentiment, o.steps.Summarizer}
}

// Analyze runs the pipeline over reportText.
//
// Step failures never produce an error: they are recorded in the result and
// the run status becomes partial or failed. Blank text returns
// *models.InvalidInputError; a step defect returns *models.StepContractViolation.
func (o *Orchestrator) Analyze(ctx context.Context, reportText string, options models.RunOptions) (*models.AnalysisResult, error) {
	plan, err := o.coordinator.Plan(reportText, options, o.opts.Parallel, o.opts.MaxRetries)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Analysis input rejected")
		return nil, err
	}

	runID := common.NewRunID()
	run := models.NewRun(runID, reportText, options)
	run.Metadata.ExecutionPlan = plan
	run.Metadata.Provider = o.provider

	e := &execution{
		o:      o,
		run:    run,
		plan:   plan,
		logger: o.logger.WithCorrelationId(runID),
	}
	if o.opts.RunBudget > 0 {
		e.deadline = run.Metadata.StartedAt.Add(o.opts.RunBudget)
	}

	e.logger.Info().
		Str("run_id", runID).
		Int("report_length", plan.ReportLength).
		Int("max_retries", plan.MaxRetries).
		Bool("parallel", plan.Parallel).
		Msg("Analysis run started")

	o.metrics.RunStarted()

	if plan.Parallel {
		err = e.runParallel(ctx)
	} else {
		err = e.runSequential(ctx)
	}
	if err != nil {
		o.metrics.RunFinished("aborted")
		return nil, err
	}

	run.Finalize(time.Now())
	o.metrics.RunFinished(run.Metadata.Status)

	e.logger.Info().
		Str("run_id", runID).
		Str("status", run.Metadata.Status).
		Int("errors", len(run.Errors)).
		Int64("duration_ms", run.Metadata.DurationMs).
		Msg("Analysis run completed")

	return run.Result(), nil
}

// execution is the state of one in-flight run
type execution struct {
	o        *Orchestrator
	run      *models.Run
	plan     *models.ExecutionPlan
	deadline time.Time
	logger   arbor.ILogger
}

// stepRun is the outcome of running one step slot
type stepRun struct {
	result   models.StepResult
	attempts int
	skipped  bool
	elapsed  time.Duration
}

func (e *execution) runSequential(ctx context.Context) error {
	for _, step := range e.o.ordered() {
		sr, err := e.runStep(ctx, step, e.input())
		if err != nil {
			return err
		}
		if err := e.apply(step, sr); err != nil {
			return err
		}
	}
	return nil
}

// runParallel runs extraction and sentiment concurrently. Both read only the
// report text; their outputs are merged after both finish.
func (e *execution) runParallel(ctx context.Context) error {
	input := e.input()
	var extraction, sentiment stepRun

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sr, err := e.runStep(gctx, e.o.steps.Extractor, input)
		extraction = sr
		return err
	})
	g.Go(func() error {
		sr, err := e.runStep(gctx, e.o.steps.Sentiment, input)
		sentiment = sr
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := e.apply(e.o.steps.Extractor, extraction); err != nil {
		return err
	}
	if err := e.apply(e.o.steps.Sentiment, sentiment); err != nil {
		return err
	}

	sr, err := e.runStep(ctx, e.o.steps.Summarizer, e.input())
	if err != nil {
		return err
	}
	return e.apply(e.o.steps.Summarizer, sr)
}

// input builds the read-only view of the run for a step
func (e *execution) input() agents.StepInput {
	return agents.StepInput{
		ReportText: e.run.InputText,
		Metrics:    e.run.Metrics,
		Sentiment:  e.run.Sentiment,
	}
}

// runStep validates and processes a step with bounded retry. It does not
// touch run state, so it is safe to call from parallel branches.
func (e *execution) runStep(ctx context.Context, step agents.Step, input agents.StepInput) (stepRun, error) {
	name := step.Name()
	logger := e.logger
	start := time.Now()

	if !step.Validate(input) {
		logger.Warn().Str("step", name.String()).Msg("Step input invalid, skipping")
		return stepRun{skipped: true}, nil
	}

	maxRetries := e.plan.MaxRetries
	for attempt := 0; ; attempt++ {
		result, err := e.invoke(ctx, step, input, attempt)
		if err != nil {
			return stepRun{}, err
		}
		e.o.metrics.ObserveStep(name.String(), string(result.Status), result.Elapsed)

		if result.Status == models.StepStatusSuccess {
			logger.Debug().
				Str("step", name.String()).
				Int("attempt", attempt+1).
				Dur("elapsed", result.Elapsed).
				Msg("Step succeeded")
			return stepRun{result: result, attempts: attempt + 1, elapsed: time.Since(start)}, nil
		}

		failed := stepRun{result: result, attempts: attempt + 1, elapsed: time.Since(start)}

		if attempt >= maxRetries {
			logger.Warn().
				Str("step", name.String()).
				Int("attempts", attempt+1).
				Strs("errors", result.Errors).
				Msg("Step failed, retries exhausted")
			return failed, nil
		}

		delay := e.o.opts.Backoff(attempt, result.RetryAfter)
		if !e.withinBudget(delay) {
			logger.Warn().
				Str("step", name.String()).
				Int("attempts", attempt+1).
				Dur("backoff", delay).
				Msg("Run budget exhausted, not retrying step")
			return failed, nil
		}

		logger.Info().
			Str("step", name.String()).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Strs("errors", result.Errors).
			Msg("Step failed, retrying after backoff")

		if err := e.o.sleep(ctx, delay); err != nil {
			logger.Warn().Str("step", name.String()).Err(err).Msg("Retry wait cancelled")
			return failed, nil
		}
		e.o.metrics.IncStepRetry(name.String())
	}
}

// invoke runs Process once and turns a panic or a non-terminal status into
// a contract violation
func (e *execution) invoke(ctx context.Context, step agents.Step, input agents.StepInput, attempt int) (result models.StepResult, err error) {
	name := step.Name()

	defer func() {
		if r := recover(); r != nil {
			stack := common.GetStackTrace()
			e.logger.Error().
				Str("step", name.String()).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("Step panicked during processing")
			err = &models.StepContractViolation{Step: name, Panic: r, Stack: stack}
		}
	}()

	rc := agents.RunContext{
		RunID:   e.run.Metadata.RunID,
		Attempt: attempt,
		Options: e.run.InputOptions,
		Logger:  e.logger,
	}
	result = step.Process(ctx, input, rc)
	result.StepName = name

	if !result.Status.IsTerminal() {
		e.logger.Error().
			Str("step", name.String()).
			Str("status", string(result.Status)).
			Msg("Step returned a non-terminal status")
		return result, &models.StepContractViolation{Step: name, Status: result.Status}
	}
	return result, nil
}

// apply records a step outcome in the run. Only called from the run's own
// goroutine.
func (e *execution) apply(step agents.Step, sr stepRun) error {
	name := step.Name()
	run := e.run
	run.Metadata.Steps = append(run.Metadata.Steps, name)

	outcome := models.StepOutcome{
		Step:     name,
		Attempts: sr.attempts,
		Elapsed:  sr.elapsed.Milliseconds(),
	}

	switch {
	case sr.skipped:
		skip := &models.ValidationSkip{Step: name, Reason: "input failed validation"}
		run.AppendError(models.StepError{
			Step:    name,
			Kind:    models.ErrorKindValidationSkip,
			Message: skip.Error(),
		})
		outcome.Status = models.StepStatusSkipped
		e.o.metrics.IncStepFailure(name.String(), models.ErrorKindValidationSkip)

	case sr.result.Status == models.StepStatusSuccess:
		if err := run.Merge(name, sr.result.Data); err != nil {
			e.logger.Error().Str("step", name.String()).Err(err).Msg("Step output rejected")
			return &models.StepContractViolation{Step: name, Status: sr.result.Status, Reason: err.Error()}
		}
		outcome.Status = models.StepStatusSuccess

	default:
		run.AppendError(models.StepError{
			Step:     name,
			Kind:     models.ErrorKindStepFailed,
			Message:  strings.Join(sr.result.Errors, "; "),
			Attempts: sr.attempts,
		})
		outcome.Status = models.StepStatusFailed
		e.o.metrics.IncStepFailure(name.String(), models.ErrorKindStepFailed)
	}

	run.Metadata.StepOutcomes = append(run.Metadata.StepOutcomes, outcome)
	return nil
}

func (e *execution) withinBudget(delay time.Duration) bool {
	return e.deadline.IsZero() || time.Now().Add(delay).Before(e.deadline)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
