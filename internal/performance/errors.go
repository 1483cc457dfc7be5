package performance

import (
	"errors"
	"fmt"
)

// ErrInvalidObservation matches every InvalidObservationError via errors.Is.
var ErrInvalidObservation = errors.New("invalid observation")

// InvalidObservationError reports an observation rejected before any
// aggregate was touched.
type InvalidObservationError struct {
	Field  string
	Reason string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

func (e *InvalidObservationError) Is(target error) bool {
	return target == ErrInvalidObservation
}
