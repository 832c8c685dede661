package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("invalid request")
	ErrPremiumRequired = errors.New("premium required")
	ErrProjectNotFound = errors.New("project not found")
	ErrHistoryNotFound = errors.New("history item not found")
	ErrStepOutOfRange  = errors.New("step out of range")
	ErrSessionClosed   = errors.New("tutorial session closed")
)

// GenerationError is the one failure the user sees from the backend: the artifact
// (or analysis) named by Op could not be produced. Retrying means calling again.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
