package model

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusDone:
		return true
	}
	return false
}

// Occupying reports whether an appointment in this status blocks its time range.
func (s Status) Occupying() bool {
	return s == StatusPending || s == StatusConfirmed
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusDone},
}

// CanTransition reports whether a status-only change from -> to is legal.
// Moving back to pending happens only through a reschedule.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReschedule reports whether an appointment in this status may be moved.
func CanReschedule(s Status) bool {
	return s.Occupying()
}

type Appointment struct {
	ID             string
	ClientID       string
	ProviderID     string
	ServiceID      string
	EmployeeID     string
	Date           string
	Time           Clock
	Status         Status
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ReminderSentAt *time.Time
}

// Scope returns the owner whose calendar this appointment occupies.
func (a Appointment) Scope() OwnerScope {
	return OwnerScope{ProviderID: a.ProviderID, EmployeeID: a.EmployeeID}
}

// StartsAt resolves the appointment start in the provider's location.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := ParseDate(a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return a.Time.On(day), nil
}

type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Active          bool
}

type Employee struct {
	ID                    string
	ProviderID            string
	CustomScheduleEnabled bool
}

// Occupying is one ledger entry blocking part of an owner's day.
type Occupying struct {
	AppointmentID   string
	Time            Clock
	DurationMinutes int
}

// ReminderCursor is a position in the (date, time, id) order reminder sweeps walk.
type ReminderCursor struct {
	Date string
	Time Clock
	ID   string
}

func CursorAt(a Appointment) ReminderCursor {
	return ReminderCursor{Date: a.Date, Time: a.Time, ID: a.ID}
}

// Precedes reports whether a sorts strictly after the cursor.
func (c ReminderCursor) Precedes(a Appointment) bool {
	if a.Date != c.Date {
		return a.Date > c.Date
	}
	if a.Time != c.Time {
		return a.Time > c.Time
	}
	return a.ID > c.ID
}
