package monitor

import (
	"errors"
	"fmt"
)

// ErrDetectionFailure marks a run that ended because the detector failed.
var ErrDetectionFailure = errors.New("person detection failed")

// DetectionError carries the frame that could not be processed.
type DetectionError struct {
	Seq uint64
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%v on frame %d: %v", ErrDetectionFailure, e.Seq, e.Err)
}

// Unwrap exposes both ErrDetectionFailure and the detector's own error.
func (e *DetectionError) Unwrap() []error {
	return []error{ErrDetectionFailure, e.Err}
}
