package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected matches every *RejectionError.
	ErrRejected = errors.New("message rejected by safety filter")
	// ErrInvalidHandoff marks a step whose input or output failed validation.
	ErrInvalidHandoff = errors.New("invalid step handoff")
	// ErrInvalidRequest marks a caller-supplied request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// StepError wraps a fatal failure with the name of the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RejectionError is returned when the safety filter blocks a message.
// Reason is addressed to the sender in Language.
type RejectionError struct {
	Reason   string
	Language string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected.Error(), e.Reason)
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}
