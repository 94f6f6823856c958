// Package models defines typed errors for better error handling and context.
package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrTransport = errors.New("transport failure")
	ErrChallenge = errors.New("challenge detected")
	ErrTimeout   = errors.New("timed out")
	ErrCrashed   = errors.New("adapter crashed")
)

// FetchError represents a non-success HTTP status or a network failure
type FetchError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d for URL %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransport }

// ChallengeError represents an anti-bot interstitial or an unexpected redirect
type ChallengeError struct {
	Domain     string
	StatusCode int
	Marker     string
	// Message, when set, is shown to the user verbatim
	Message string
}

func (e *ChallengeError) Error() string {
	if e.Marker != "" {
		return fmt.Sprintf("challenge page on %s (marker %q)", e.Domain, e.Marker)
	}
	return fmt.Sprintf("challenge redirect on %s (HTTP %d)", e.Domain, e.StatusCode)
}

func (e *ChallengeError) Is(target error) bool { return target == ErrChallenge }

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s after %s: %v", e.Operation, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// InvalidURLError represents an invalid URL error
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %s: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// CrashError wraps a value recovered from a panicking adapter
type CrashError struct {
	Source string
	Value  any
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("%s crashed: %v", e.Source, e.Value)
}

func (e *CrashError) Is(target error) bool { return target == ErrCrashed }

// ErrorCategory groups adapter failures the way callers present them
type ErrorCategory string

const (
	CategoryNone        ErrorCategory = ""
	CategoryBlocked     ErrorCategory = "blocked"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryUnavailable ErrorCategory = "unavailable"
	CategoryCrashed     ErrorCategory = "crashed"
)

// ClassifyError maps an adapter error onto a category.
func ClassifyError(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrChallenge):
		return CategoryBlocked
	case errors.Is(err, ErrCrashed):
		return CategoryCrashed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryUnavailable
	}
}

// StatusMessage renders the per-source error string reported to callers.
func StatusMessage(source string, err error) string {
	switch ClassifyError(err) {
	case CategoryNone:
		return ""
	case CategoryBlocked:
		var ce *ChallengeError
		if errors.As(err, &ce) && ce.Message != "" {
			return ce.Message
		}
		return fmt.Sprintf("%s requires verification - visit the site directly", source)
	case CategoryTimeout:
		return fmt.Sprintf("%s timed out", source)
	case CategoryCrashed:
		return fmt.Sprintf("%s failed unexpectedly: %v", source, err)
	default:
		return fmt.Sprintf("%s temporarily unavailable: %v", source, err)
	}
}
