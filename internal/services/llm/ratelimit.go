package llm

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/tally/internal/models"
)

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes, RESOURCE_EXHAUSTED and quota errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// newGenerationError wraps a provider failure, flagging rate limits
func newGenerationError(provider, op string, err error) *models.GenerationError {
	genErr := &models.GenerationError{
		Provider: provider,
		Op:       op,
		Err:      err,
	}
	if IsRateLimitError(err) {
		genErr.RateLimited = true
		genErr.RetryAfter = ExtractRetryDelay(err)
	}
	return genErr
}

var errEmptyResponse = errors.New("no content returned")

// newLimiter builds a limiter allowing one call per interval.
// An empty or zero interval disables limiting.
func newLimiter(interval string) *rate.Limiter {
	d, err := time.ParseDuration(interval)
	if interval == "" || err != nil || d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}
