package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for input precondition violations. The scan fails fast on
// the offending record rather than guessing at boundaries.
var (
	ErrInputOrder       = errors.New("events are not in device-timestamp order")
	ErrMissingVisitorID = errors.New("event has no visitor id")
	ErrMissingTimestamp = errors.New("event has no device timestamp")
	ErrMixedVisitors    = errors.New("events belong to more than one visitor")
)

// InputError wraps a precondition sentinel with the identity of the record
// that violated it.
type InputError struct {
	VisitorID string
	DeviceAt  time.Time
	Index     int
	Err       error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("event %d (visitor=%s device_at=%s): %v",
		e.Index, e.VisitorID, e.DeviceAt.Format(time.RFC3339), e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func inputErr(i int, visitorID string, at time.Time, err error) error {
	return &InputError{VisitorID: visitorID, DeviceAt: at, Index: i, Err: err}
}
