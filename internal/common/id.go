package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique analysis run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewRequestID generates an HTTP request ID with the "req_" prefix
func NewRequestID() string {
	return "req_" + uuid.New().String()
}
