package profile

import "time"

// RunStatus is the terminal outcome of one adapter.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
	StatusSkipped RunStatus = "skipped"
)

// FieldError is one recorded failure, at field, section or adapter level.
type FieldError struct {
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Drift notes a field resolved by a fallback locator.
type Drift struct {
	Field string `json:"field"`
	Index int    `json:"index"`
}

// RateLimitState is the quota state observed on an API source.
type RateLimitState struct {
	Limited   bool      `json:"limited"`
	Limit     int       `json:"limit,omitempty"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset,omitzero"`
}

// SourceRunReport is the execution record of one adapter within a run.
type SourceRunReport struct {
	Source    string          `json:"source"`
	Status    RunStatus       `json:"status"`
	Errors    []FieldError    `json:"errors,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Drift     []Drift         `json:"drift,omitempty"`
	RateLimit *RateLimitState `json:"rate_limit,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// Failed reports whether the adapter produced nothing usable.
func (r SourceRunReport) Failed() bool { return r.Status == StatusFailed }
