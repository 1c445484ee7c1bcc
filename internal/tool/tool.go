// Package tool provides the provider-agnostic invocation layer: named
// capabilities registered once, invoked through an executor that always
// returns a uniform result envelope no matter what failed.
package tool

import (
	"context"
	"fmt"
)

// Code classifies a provider failure. The set is closed: anything a handler
// produces that is not one of these maps to CodeProviderError.
type Code string

const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeFetchFailed   Code = "FETCH_FAILED"
	CodeTimeout       Code = "TIMEOUT"
	CodeParseFailed   Code = "PARSE_FAILED"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeAuthFailed    Code = "AUTH_FAILED"
	CodeProviderError Code = "PROVIDER_ERROR"
)

// Retryable reports whether a failure class is worth retrying.
func (c Code) Retryable() bool {
	switch c {
	case CodeFetchFailed, CodeTimeout, CodeRateLimited:
		return true
	default:
		return false
	}
}

// Failure is a classified provider failure. Handlers return it (wrapped as an
// error) so the executor can fold it into the result envelope; it never
// crosses the tool boundary as a raised error.
type Failure struct {
	Code    Code
	Message string
	Context map[string]string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFailure builds a classified failure.
func NewFailure(code Code, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithContext attaches a context entry and returns the failure for chaining.
func (f *Failure) WithContext(key, value string) *Failure {
	if f.Context == nil {
		f.Context = make(map[string]string)
	}
	f.Context[key] = value
	return f
}

// Item is the normalized shape every provider entry is mapped to.
type Item struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
	Snippet     string `json:"snippet,omitempty"`
	Author      string `json:"author,omitempty"`
	Source      string `json:"source"`
	RawID       string `json:"raw_id,omitempty"`
}

// Meta records how an invocation went.
type Meta struct {
	Tool       string  `json:"tool"`
	DurationMs float64 `json:"duration_ms"`
	ItemCount  int     `json:"item_count"`
}

// Error is the wire form of a Failure, stamped with the tool name.
type Error struct {
	Tool      string            `json:"tool"`
	Code      Code              `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Context   map[string]string `json:"context,omitempty"`
}

// Result is the uniform envelope every invocation returns. Success is
// three-valued: items with no errors, items alongside errors (partial), or
// errors with no items (total failure). A result with neither is an empty
// success and stays distinguishable from both failure shapes.
type Result struct {
	Items    []Item   `json:"items"`
	Meta     Meta     `json:"meta"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []Error  `json:"errors,omitempty"`
}

// AddWarning records a non-fatal issue.
func (r *Result) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// IsSuccess reports items with no fatal errors.
func (r *Result) IsSuccess() bool { return len(r.Items) > 0 && len(r.Errors) == 0 }

// IsPartial reports items alongside fatal errors.
func (r *Result) IsPartial() bool { return len(r.Items) > 0 && len(r.Errors) > 0 }

// Handler implements a capability. It may return a *Failure (or any error)
// on total failure; the executor classifies and envelopes it.
type Handler func(ctx context.Context, payload map[string]any) (*Result, error)
