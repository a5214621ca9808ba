package proctor

import (
	"errors"
	"fmt"
)

var (
	ErrDecode          = errors.New("frame could not be decoded")
	ErrEmptyFrame      = errors.New("frame is empty")
	ErrNilSession      = errors.New("session is nil")
	ErrMissingDetector = errors.New("frontal and profile detectors are required")
)

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDecode.Error(), e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
