package orchestrator

import (
	"math"
	"time"

	"github.com/ternarybob/tally/internal/common"
)

// Options control retry and scheduling
type Options struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	RetryMultiplier float64
	RunBudget       time.Duration
	Parallel        bool
}

// OptionsFromConfig converts the pipeline configuration
func OptionsFromConfig(cfg common.PipelineConfig) Options {
	multiplier := cfg.RetryMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return Options{
		MaxRetries:      cfg.MaxRetries,
		RetryBackoff:    common.ParseDurationOr(cfg.RetryBackoff, time.Second),
		RetryMaxBackoff: common.ParseDurationOr(cfg.RetryMaxBackoff, 30*time.Second),
		RetryMultiplier: multiplier,
		RunBudget:       common.ParseDurationOr(cfg.RunBudget, 0),
		Parallel:        cfg.ParallelIndependent,
	}
}

// Backoff returns the wait before the retry following attempt (0-based):
// RetryBackoff * RetryMultiplier^attempt capped at RetryMaxBackoff, and never
// shorter than a provider suggested delay.
func (o Options) Backoff(attempt int, hint time.Duration) time.Duration {
	multiplier := o.RetryMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	backoff := float64(o.RetryBackoff) * math.Pow(multiplier, float64(attempt))
	if o.RetryMaxBackoff > 0 && backoff > float64(o.RetryMaxBackoff) {
		backoff = float64(o.RetryMaxBackoff)
	}

	delay := time.Duration(backoff)
	if hint > delay {
		delay = hint
	}
	return delay
}
