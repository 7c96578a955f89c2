package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tally/internal/models"
	"github.com/ternarybob/tally/internal/services/agents"
	"github.com/ternarybob/tally/internal/services/llm/offline"
)

const sampleReport = `TechCorp International Q3 2024 Earnings Report

Revenue: $15.2 billion (up 12% YoY); EPS: $4.52 vs estimate $4.30; Net income: $3.8 billion, up 18% year-over-year.
Operating margin: 28.5%, compared to 26.2% last year.
Cloud Services revenue of $6.8 billion grew 35% YoY.
Hardware revenue of $3.3 billion declined 2%.

We are thrilled with our outstanding performance. We exceeded expectations and achieved record results,
with strong growth in cloud and unprecedented demand for AI solutions. We remain confident, though cautious
about macroeconomic uncertainty and increasing competition.
`

// recordingSleeper returns immediately and records requested delays
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testOptions(maxRetries int) Options {
	return Options{
		MaxRetries:      maxRetries,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
		RetryMultiplier: 2,
	}
}

func offlineSteps(llm *offline.DeterministicService) Steps {
	logger := arbor.NewLogger()
	return Steps{
		Extractor:  agents.NewExtractor(llm, logger),
		Sentiment:  agents.NewSentimentAnalyzer(llm, logger),
		Summarizer: agents.NewSummarizer(llm, agents.DefaultRecommendationPolicy(), true, logger),
	}
}

func newTestOrchestrator(steps Steps, opts Options, options ...Option) (*Orchestrator, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	options = append([]Option{WithSleeper(sleeper.sleep), WithProvider("offline")}, options...)
	return New(steps, opts, arbor.NewLogger(), options...), sleeper
}

func TestAnalyze_StatusAlwaysSet(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger())
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	for _, text := range []string{sampleReport, "x", "The annual meeting is in May."} {
		result, err := o.Analyze(context.Background(), text, models.RunOptions{})
		require.NoError(t, err)
		assert.Contains(t, []string{models.RunStatusSuccess, models.RunStatusPartial, models.RunStatusFailed}, result.RunMetadata.Status)
		assert.NotNil(t, result.Errors)
	}
}

func TestAnalyze_SampleReport(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger())
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSuccess, result.RunMetadata.Status)
	assert.Empty(t, result.Errors)

	require.NotNil(t, result.Metrics)
	assert.Equal(t, 15.2, result.Metrics.Revenue.Value)
	assert.True(t, result.Metrics.EPS.BeatEstimate)

	require.NotNil(t, result.Sentiment)
	assert.Equal(t, models.SentimentPositive, result.Sentiment.OverallSentiment)

	require.NotNil(t, result.Summary)
	assert.Contains(t, []string{models.RecommendationBuy, models.RecommendationHold, models.RecommendationSell}, result.Summary.Recommendation)
	assert.GreaterOrEqual(t, result.Summary.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, result.Summary.ConfidenceScore, 1.0)

	meta := result.RunMetadata
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, "offline", meta.Provider)
	assert.Equal(t, models.PipelineSteps(), meta.Steps)
	require.Len(t, meta.StepOutcomes, 3)
	for _, outcome := range meta.StepOutcomes {
		assert.Equal(t, models.StepStatusSuccess, outcome.Status)
		assert.Equal(t, 1, outcome.Attempts)
	}
	require.NotNil(t, meta.ExecutionPlan)
	assert.Equal(t, len(sampleReport), meta.ExecutionPlan.ReportLength)
	assert.False(t, meta.CompletedAt.Before(meta.StartedAt))
}

func TestAnalyze_Deterministic(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger())
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	first, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)
	second, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first.Metrics, second.Metrics))
	assert.Empty(t, cmp.Diff(first.Sentiment, second.Sentiment))
	assert.Empty(t, cmp.Diff(first.Summary, second.Summary))
	assert.NotEqual(t, first.RunMetadata.RunID, second.RunMetadata.RunID)
}

func TestAnalyze_RetryRecovers(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).FailFirst(offline.KindMetrics, 2)
	o, sleeper := newTestOrchestrator(offlineSteps(llm), testOptions(2))

	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	require.NotNil(t, result.Metrics)
	assert.Empty(t, result.ErrorsFor(models.StepExtraction))
	assert.Equal(t, models.RunStatusSuccess, result.RunMetadata.Status)
	assert.Equal(t, 3, llm.Calls(offline.KindMetrics))
	assert.Equal(t, 3, result.RunMetadata.StepOutcomes[0].Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.recorded())
}

func TestAnalyze_PartialFailure(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).AlwaysFail(offline.KindSentiment)
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.NotNil(t, result.Metrics)
	assert.Nil(t, result.Sentiment)
	require.NotNil(t, result.Summary)
	assert.NotEmpty(t, result.Summary.Headline)

	sentimentErrors := result.ErrorsFor(models.StepSentiment)
	require.Len(t, sentimentErrors, 1)
	assert.Equal(t, models.ErrorKindStepFailed, sentimentErrors[0].Kind)
	assert.Equal(t, 4, sentimentErrors[0].Attempts)
	assert.Len(t, result.Errors, 1)

	assert.Equal(t, models.RunStatusPartial, result.RunMetadata.Status)
	assert.Equal(t, 4, llm.Calls(offline.KindSentiment))
}

func TestAnalyze_ZeroRetryBudget(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).AlwaysFail(offline.KindMetrics)
	o, sleeper := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	zero := 0
	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{MaxRetries: &zero})
	require.NoError(t, err)

	assert.Equal(t, 1, llm.Calls(offline.KindMetrics))
	assert.Len(t, result.ErrorsFor(models.StepExtraction), 1)
	assert.Nil(t, result.Metrics)
	assert.Empty(t, sleeper.recorded())
}

func TestAnalyze_EverythingFails(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).
		AlwaysFail(offline.KindMetrics).
		AlwaysFail(offline.KindSentiment).
		AlwaysFail(offline.KindSummary)
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(1))

	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, result.RunMetadata.Status)
	assert.Len(t, result.Errors, 3)
	assert.Nil(t, result.Metrics)
	assert.Nil(t, result.Sentiment)
	assert.Nil(t, result.Summary)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger())
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	for _, text := range []string{"", "  \n\t "} {
		result, err := o.Analyze(context.Background(), text, models.RunOptions{})
		assert.Nil(t, result)

		var invalid *models.InvalidInputError
		assert.True(t, errors.As(err, &invalid))
	}
	assert.Equal(t, 0, llm.Calls(offline.KindMetrics))
}

func TestAnalyze_Isolation(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).
		WithResponse(offline.KindMetrics, "Figures are in the attached tables.")
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(0))

	reports := map[float64]string{
		11.0: "Revenue: $11.0 billion (up 5% YoY). Operating margin: 22%.",
		42.5: "Revenue: $42.5 billion (down 3% YoY). Operating margin: 9%.",
	}

	var wg sync.WaitGroup
	var mismatches atomic.Int32
	for i := 0; i < 10; i++ {
		for revenue, text := range reports {
			wg.Add(1)
			go func(revenue float64, text string) {
				defer wg.Done()
				result, err := o.Analyze(context.Background(), text, models.RunOptions{})
				if err != nil || result.Metrics == nil || result.Metrics.Revenue == nil || result.Metrics.Revenue.Value != revenue {
					mismatches.Add(1)
				}
			}(revenue, text)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(0), mismatches.Load())
}

func TestAnalyze_ParallelMatchesSequential(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger())
	sequential, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3))

	opts := testOptions(3)
	opts.Parallel = true
	parallel, _ := newTestOrchestrator(offlineSteps(llm), opts)

	want, err := sequential.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)
	got, err := parallel.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.True(t, got.RunMetadata.ExecutionPlan.Parallel)
	assert.Equal(t, models.PipelineSteps(), got.RunMetadata.Steps)
	assert.Empty(t, cmp.Diff(want.Metrics, got.Metrics))
	assert.Empty(t, cmp.Diff(want.Sentiment, got.Sentiment))
	assert.Empty(t, cmp.Diff(want.Summary, got.Summary))
}

func TestAnalyze_ParallelPerRunOverride(t *testing.T) {
	llm := offline.NewDeterministicService(arbor.NewLogger()).AlwaysFail(offline.KindSentiment)
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(1))

	enabled := true
	result, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{ParallelIndependent: &enabled})
	require.NoError(t, err)

	assert.True(t, result.RunMetadata.ExecutionPlan.Parallel)
	assert.NotNil(t, result.Metrics)
	assert.NotNil(t, result.Summary)
	assert.Len(t, result.ErrorsFor(models.StepSentiment), 1)
}

// fakeStep is a scripted Step
type fakeStep struct {
	name    models.StepName
	invalid bool
	process func(attempt int) models.StepResult
	calls   atomic.Int32
}

func (f *fakeStep) Name() models.StepName {
	return f.name
}

func (f *fakeStep) Description() string {
	return "fake " + f.name.String()
}

func (f *fakeStep) Validate(input agents.StepInput) bool {
	return !f.invalid
}

func (f *fakeStep) Process(ctx context.Context, input agents.StepInput, rc agents.RunContext) models.StepResult {
	f.calls.Add(1)
	return f.process(rc.Attempt)
}

func succeedWith(name models.StepName, data models.StepData) func(int) models.StepResult {
	return func(int) models.StepResult { return models.Succeeded(name, data, time.Millisecond) }
}

func fakeSteps() (*fakeStep, *fakeStep, *fakeStep) {
	extractor := &fakeStep{name: models.StepExtraction, process: succeedWith(models.StepExtraction,
		models.StepData{Metrics: &models.MetricsResult{Revenue: &models.Amount{Value: 1}}})}
	sentiment := &fakeStep{name: models.StepSentiment, process: succeedWith(models.StepSentiment,
		models.StepData{Sentiment: &models.SentimentResult{OverallSentiment: models.SentimentNeutral, Confidence: 0.5}})}
	summarizer := &fakeStep{name: models.StepSummary, process: succeedWith(models.StepSummary,
		models.StepData{Summary: &models.SummaryResult{Headline: "h", Summary: "s", Recommendation: models.RecommendationHold}})}
	return extractor, sentiment, summarizer
}

func TestAnalyze_ValidationSkip(t *testing.T) {
	extractor, sentiment, summarizer := fakeSteps()
	sentiment.invalid = true
	o, _ := newTestOrchestrator(Steps{extractor, sentiment, summarizer}, testOptions(3))

	result, err := o.Analyze(context.Background(), "report", models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(0), sentiment.calls.Load())
	skips := result.ErrorsFor(models.StepSentiment)
	require.Len(t, skips, 1)
	assert.Equal(t, models.ErrorKindValidationSkip, skips[0].Kind)
	assert.Equal(t, 0, skips[0].Attempts)
	assert.Equal(t, models.StepStatusSkipped, result.RunMetadata.StepOutcomes[1].Status)
	assert.Equal(t, models.RunStatusPartial, result.RunMetadata.Status)
}

func TestAnalyze_RetryAfterHint(t *testing.T) {
	extractor, sentiment, summarizer := fakeSteps()
	extractor.process = func(attempt int) models.StepResult {
		if attempt == 0 {
			result := models.Failed(models.StepExtraction, time.Millisecond, "rate limited")
			result.RetryAfter = 20 * time.Second
			return result
		}
		return models.Succeeded(models.StepExtraction, models.StepData{Metrics: &models.MetricsResult{Revenue: &models.Amount{Value: 1}}}, time.Millisecond)
	}
	o, sleeper := newTestOrchestrator(Steps{extractor, sentiment, summarizer}, testOptions(3))

	result, err := o.Analyze(context.Background(), "report", models.RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []time.Duration{20 * time.Second}, sleeper.recorded())
}

func TestAnalyze_RunBudgetStopsRetries(t *testing.T) {
	extractor, sentiment, summarizer := fakeSteps()
	extractor.process = func(int) models.StepResult {
		return models.Failed(models.StepExtraction, time.Millisecond, "backend down")
	}
	opts := testOptions(5)
	opts.RunBudget = 500 * time.Millisecond
	o, sleeper := newTestOrchestrator(Steps{extractor, sentiment, summarizer}, opts)

	result, err := o.Analyze(context.Background(), "report", models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), extractor.calls.Load())
	assert.Empty(t, sleeper.recorded())
	require.Len(t, result.ErrorsFor(models.StepExtraction), 1)
	assert.Equal(t, "backend down", result.Errors[0].Message)
}

func TestAnalyze_CancelledContextStopsRetries(t *testing.T) {
	extractor, sentiment, summarizer := fakeSteps()
	extractor.process = func(int) models.StepResult {
		return models.Failed(models.StepExtraction, time.Millisecond, "backend down")
	}
	o, _ := newTestOrchestrator(Steps{extractor, sentiment, summarizer}, testOptions(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Analyze(ctx, "report", models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), extractor.calls.Load())
	assert.Len(t, result.ErrorsFor(models.StepExtraction), 1)
}

func TestAnalyze_ContractViolations(t *testing.T) {
	tests := []struct {
		name    string
		process func(int) models.StepResult
		check   func(t *testing.T, v *models.StepContractViolation)
	}{
		{
			name:    "panic",
			process: func(int) models.StepResult { panic("boom") },
			check: func(t *testing.T, v *models.StepContractViolation) {
				assert.Equal(t, "boom", v.Panic)
				assert.NotEmpty(t, v.Stack)
			},
		},
		{
			name: "non-terminal status",
			process: func(int) models.StepResult {
				return models.StepResult{StepName: models.StepSentiment, Status: models.StepStatusRunning}
			},
			check: func(t *testing.T, v *models.StepContractViolation) {
				assert.Equal(t, models.StepStatusRunning, v.Status)
			},
		},
		{
			name: "writes a field it does not own",
			process: succeedWith(models.StepSentiment,
				models.StepData{Metrics: &models.MetricsResult{Revenue: &models.Amount{Value: 9}}}),
			check: func(t *testing.T, v *models.StepContractViolation) {
				assert.Contains(t, v.Reason, "does not own")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, sentiment, summarizer := fakeSteps()
			sentiment.process = tt.process
			o, _ := newTestOrchestrator(Steps{extractor, sentiment, summarizer}, testOptions(3))

			result, err := o.Analyze(context.Background(), "report", models.RunOptions{})
			assert.Nil(t, result)

			var violation *models.StepContractViolation
			require.True(t, errors.As(err, &violation), fmt.Sprintf("got %v", err))
			assert.Equal(t, models.StepSentiment, violation.Step)
			assert.Equal(t, int32(1), sentiment.calls.Load())
			assert.Equal(t, int32(0), summarizer.calls.Load())
			tt.check(t, violation)
		})
	}
}

func TestAnalyze_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)

	llm := offline.NewDeterministicService(arbor.NewLogger()).FailFirst(offline.KindMetrics, 1)
	o, _ := newTestOrchestrator(offlineSteps(llm), testOptions(3), WithMetrics(metrics))

	_, err := o.Analyze(context.Background(), sampleReport, models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runsTotal.WithLabelValues(models.RunStatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stepRetries.WithLabelValues(models.StepExtraction.String())))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.runsActive))

	again := MustNewMetrics(reg)
	assert.Same(t, metrics.runsTotal, again.runsTotal)
}

func TestSteps(t *testing.T) {
	o, _ := newTestOrchestrator(offlineSteps(offline.NewDeterministicService(arbor.NewLogger())), testOptions(3))

	infos := o.Steps()
	require.Len(t, infos, 4)
	assert.Equal(t, models.StepCoordinator, infos[0].Name)
	for i, name := range models.PipelineSteps() {
		assert.Equal(t, name, infos[i+1].Name)
		assert.Equal(t, i+1, infos[i+1].Order)
		assert.NotEmpty(t, infos[i+1].Description)
	}
}

func TestBackoff(t *testing.T) {
	opts := testOptions(5)

	tests := []struct {
		attempt  int
		hint     time.Duration
		expected time.Duration
	}{
		{0, 0, time.Second},
		{1, 0, 2 * time.Second},
		{3, 0, 8 * time.Second},
		{10, 0, 30 * time.Second},
		{0, 5 * time.Second, 5 * time.Second},
		{3, 5 * time.Second, 8 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d_hint_%s", tt.attempt, tt.hint), func(t *testing.T) {
			assert.Equal(t, tt.expected, opts.Backoff(tt.attempt, tt.hint))
		})
	}

	linear := Options{RetryBackoff: time.Second, RetryMultiplier: 0}
	assert.Equal(t, time.Second, linear.Backoff(4, 0))
}
