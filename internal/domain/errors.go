package domain

import (
	"errors"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("decode failed")
	// ErrStepNotFound is returned for step ids outside 1..TotalSteps.
	ErrStepNotFound = errors.New("step not found")
	// ErrAttemptNotFound is returned when a user has no attempt to act on.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrUserNotFound is returned when a user id or email is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrQuestionBankNotFound indicates no question bank exists for a locale.
	ErrQuestionBankNotFound = errors.New("question bank not found")
	// ErrPersistence wraps unexpected storage failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned on sign up with a registered email.
	ErrEmailTaken = errors.New("email has already been taken")
	// ErrUnauthenticated is returned when a request has no signed-in user.
	ErrUnauthenticated = errors.New("you need to sign in first")
)

// FieldError is one labeled validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + " " + e.Message
}

// ValidationError collects every field failure rather than stopping at the first.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

// Add appends a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Merge appends the failures of another validation error.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Fields = append(e.Fields, other.Fields...)
}

// Empty reports whether no failures were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DecodeError reports which stage of token decoding failed.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Stage + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
