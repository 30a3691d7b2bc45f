package monitor

import (
	"errors"
	"fmt"
)

// ErrTargetNotFound is returned by TargetStore.Get for unknown targets.
var ErrTargetNotFound = errors.New("target not found")

// JobErrorCode identifies the failure class surfaced for a crawl job.
type JobErrorCode string

// Job failure codes. Only TARGET_NOT_FOUND is terminal on first occurrence;
// everything else retries until attempts are exhausted.
const (
	CodeTargetNotFound  JobErrorCode = "TARGET_NOT_FOUND"
	CodeRateLimited     JobErrorCode = "RATE_LIMITED"
	CodeFetchFailed     JobErrorCode = "FETCH_FAILED"
	CodeExtractionFailed JobErrorCode = "EXTRACTION_FAILED"
	CodePersistFailed   JobErrorCode = "SNAPSHOT_OR_ALERT_FAILED"
	CodeUnknown         JobErrorCode = "UNKNOWN"
)

// JobError wraps an underlying failure with its taxonomy code.
type JobError struct {
	Code JobErrorCode
	Err  error
}

// NewJobError builds a JobError.
func NewJobError(code JobErrorCode, err error) *JobError {
	return &JobError{Code: code, Err: err}
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the job should be re-enqueued.
func (e *JobError) Retryable() bool {
	return e.Code != CodeTargetNotFound
}

// JobCode extracts the taxonomy code from any error, defaulting to UNKNOWN.
func JobCode(err error) JobErrorCode {
	var je *JobError
	if errors.As(err, &je) {
		return je.Code
	}
	return CodeUnknown
}

// FetchErrorKind distinguishes the ways a fetch can fail.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchNavigation FetchErrorKind = "navigation"
	FetchTimeout    FetchErrorKind = "timeout"
	FetchBadStatus  FetchErrorKind = "bad_status"
)

// FetchError is the typed error raised by fetcher implementations.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchBadStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
