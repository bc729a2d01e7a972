package domain

import (
	"errors"
	"fmt"
)

// IntakeErrorKind classifies upload rejections. They are surfaced to the
// uploader immediately and leave the batch untouched.
type IntakeErrorKind string

const (
	IntakeFileType  IntakeErrorKind = "file_type"
	IntakeFileSize  IntakeErrorKind = "file_size"
	IntakeDuplicate IntakeErrorKind = "duplicate"
	IntakeFileCount IntakeErrorKind = "file_count"
	IntakeClosed    IntakeErrorKind = "intake_closed"
	IntakeEmpty     IntakeErrorKind = "empty_batch"
)

type IntakeError struct {
	Kind     IntakeErrorKind
	Filename string
	Message  string
}

func (e *IntakeError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("intake rejected %s: %s", e.Filename, e.Message)
	}
	return "intake rejected: " + e.Message
}

// ExtractionError is a per-resume failure of the text extraction adapter.
// It is recorded as resume status "error"; the batch continues.
type ExtractionError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Filename, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ScoringError is a per-resume failure or timeout of the scoring adapter.
// Recorded as resume status "error"; the batch continues.
type ScoringError struct {
	Timeout bool
	Err     error
}

func (e *ScoringError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("scoring timed out: %v", e.Err)
	}
	return fmt.Sprintf("scoring failed: %v", e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// PreconditionError is batch-fatal: the batch moves to failed and no adapter
// calls are made. Missing or invalid job description is the canonical case.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// StorageError wraps a session transport write failure. Batch-fatal,
// propagated to the caller after a single retry.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("session storage: %v", e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

var (
	// ErrNoBatch means the session has no active batch (never created,
	// already drained, or expired). Not an error for the polling client.
	ErrNoBatch = errors.New("no active batch for session")

	// ErrAnalysisRunning rejects a second run against the same batch.
	ErrAnalysisRunning = errors.New("analysis already running for this batch")

	// ErrBatchNotReady rejects a run before intake has been closed.
	ErrBatchNotReady = errors.New("batch is not ready for analysis")

	// ErrEnvelopeTooLarge means the serialized envelope would exceed the
	// session transport size ceiling.
	ErrEnvelopeTooLarge = errors.New("session envelope exceeds size ceiling")
)
