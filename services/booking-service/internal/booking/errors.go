package booking

import (
	"errors"
	"fmt"

	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
)

var (
	ErrNotFound           = model.ErrNotFound
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrForbidden          = errors.New("not allowed to change this appointment")
	ErrCancellationWindow = errors.New("too close to the appointment to cancel or reschedule")
	// ErrStaleStatus is returned by stores when a compare-and-set on the status misses.
	ErrStaleStatus = errors.New("appointment changed concurrently")
)

// SlotError carries the validator's verdict when a booking or reschedule is refused.
type SlotError struct {
	Reason  scheduling.Reason
	Message string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot rejected (%s): %s", e.Reason, e.Message)
}

func illegal(from, to model.Status) error {
	return fmt.Errorf("%w: cannot move appointment from %s to %s", ErrIllegalTransition, from, to)
}
