package quiz

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrForbidden     = errors.New("forbidden")
	ErrDataIntegrity = errors.New("data integrity")
	ErrValidation    = errors.New("validation")
)

// ConflictError is returned when a user already has an unsubmitted attempt for a quiz.
type ConflictError struct {
	QuizID    string
	UserID    string
	AttemptID string // the attempt that is still active
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attempt %s already in progress for quiz %s", e.AttemptID, e.QuizID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type InvalidStateError struct {
	AttemptID string
	Status    Status
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: attempt %s is %s", e.Op, e.AttemptID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

type ForbiddenError struct {
	AttemptID string
	UserID    string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %s may not access attempt %s", e.UserID, e.AttemptID)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// DataIntegrityError marks a quiz that cannot be graded as authored.
type DataIntegrityError struct {
	QuizID     string
	QuestionID string
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	if e.QuestionID != "" {
		return fmt.Sprintf("quiz %s question %s: %s", e.QuizID, e.QuestionID, e.Reason)
	}
	return fmt.Sprintf("quiz %s: %s", e.QuizID, e.Reason)
}

func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }

// Invalid wraps ErrValidation with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
