package wizard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationFailed means a step's fields are missing or out of bounds.
	ErrValidationFailed = errors.New("step validation failed")
	// ErrUnauthenticated means no identity was available at generation time.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrGenerationFailed means the generation request failed or returned an unusable response.
	ErrGenerationFailed = errors.New("plan generation failed")
	// ErrPersistenceFailed means a plan was generated but could not be stored.
	ErrPersistenceFailed = errors.New("plan generated but could not be saved")

	// ErrNoNextStep is returned by Continue on the review step.
	ErrNoNextStep = errors.New("already on the last step")
	// ErrNoPreviousStep is returned by Back on the first step.
	ErrNoPreviousStep = errors.New("already on the first step")
	// ErrReviewHasNoFields is returned by Submit on the review step.
	ErrReviewHasNoFields = errors.New("review step has no fields to submit")
)

// ValidationError carries the result of a failed step validation.
type ValidationError struct {
	Step   int
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Result.MissingFields) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Result.MissingFields, ", "))
	}
	if len(e.Result.InvalidFields) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Result.InvalidFields, ", "))
	}
	return fmt.Sprintf("step %d validation failed (%s)", e.Step, strings.Join(parts, "; "))
}

// Is reports ErrValidationFailed as the sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// GenerationError wraps an upstream failure from the generation endpoint.
type GenerationError struct {
	// StatusCode is the HTTP status returned upstream, or 0 for transport errors.
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("plan generation failed (status %d): %s", e.StatusCode, msg)
	}
	return "plan generation failed: " + msg
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is reports ErrGenerationFailed as the sentinel.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// PersistenceError reports that a generated plan was not stored. The plan
// content travels alongside it in the GenerationResult.
type PersistenceError struct {
	Warning string
}

func (e *PersistenceError) Error() string {
	if e.Warning == "" {
		return ErrPersistenceFailed.Error()
	}
	return e.Warning
}

// Is reports ErrPersistenceFailed as the sentinel.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailed
}
