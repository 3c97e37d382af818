package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/google/uuid"
)

// Tx is the view of the store held while the owner-day booking lock is taken. Appended
// events commit or roll back with the writes.
type Tx interface {
	scheduling.Ledger
	outbox.Appender
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	// MoveAppointment sets the new date/time and resets status to pending if the current
	// status still equals from; otherwise it returns ErrStaleStatus.
	MoveAppointment(ctx context.Context, id, date string, at model.Clock, from model.Status) error
	// UpdateStatus is a compare-and-set on the current status.
	UpdateStatus(ctx context.Context, id string, from, to model.Status) error
}

type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// WithBookingLock serializes writers for one provider-day; fn's reads see every
	// committed write made under the same lock.
	WithBookingLock(ctx context.Context, providerID, date string, fn func(Tx) error) error
}

type Validator interface {
	ValidateSlotWith(ctx context.Context, ledger scheduling.Ledger, req scheduling.ValidateRequest) scheduling.Result
}

// Notifier records a change as events in the transaction making it. An error aborts the change.
type Notifier interface {
	AppointmentCreated(ctx context.Context, out outbox.Appender, appt model.Appointment, by model.Role) error
	StatusChanged(ctx context.Context, out outbox.Appender, appt model.Appointment, from model.Status, by model.Role) error
	Rescheduled(ctx context.Context, out outbox.Appender, appt model.Appointment, prev model.Appointment, by model.Role) error
}

// Writer is the only component that mutates appointments.
type Writer struct {
	store     Store
	validator Validator
	settings  settings.Source
	notifier  Notifier
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

type WriterConfig struct {
	Location *time.Location
	Now      func() time.Time
}

func NewWriter(store Store, validator Validator, settingsSource settings.Source, notifier Notifier, logger *slog.Logger, cfg WriterConfig) *Writer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Writer{
		store:     store,
		validator: validator,
		settings:  settingsSource,
		notifier:  notifier,
		logger:    logger,
		loc:       cfg.Location,
		now:       cfg.Now,
	}
}

type CreateRequest struct {
	ProviderID string
	ServiceID  string
	EmployeeID string
	Date       string
	Time       string
	Notes      string
}

// Create books a new pending appointment for the requester after an authoritative slot check.
func (w *Writer) Create(ctx context.Context, requester auth.Identity, req CreateRequest) (model.Appointment, error) {
	if requester.UserID == "" {
		return model.Appointment{}, ErrForbidden
	}
	at, err := model.ParseClock(req.Time)
	if err != nil {
		return model.Appointment{}, &SlotError{Reason: scheduling.ReasonUnavailable, Message: "invalid time"}
	}

	now := w.now().UTC()
	appt := model.Appointment{
		ID:         uuid.NewString(),
		ClientID:   requester.UserID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		EmployeeID: req.EmployeeID,
		Date:       req.Date,
		Time:       at,
		Status:     model.StatusPending,
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = w.store.WithBookingLock(ctx, req.ProviderID, req.Date, func(tx Tx) error {
		res := w.validator.ValidateSlotWith(ctx, tx, scheduling.ValidateRequest{
			ProviderID: req.ProviderID,
			ServiceID:  req.ServiceID,
			EmployeeID: req.EmployeeID,
			Date:       req.Date,
			Time:       req.Time,
		})
		if !res.OK {
			return &SlotError{Reason: res.Reason, Message: res.Message}
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		return w.notify(func(n Notifier) error { return n.AppointmentCreated(ctx, tx, appt, roleOf(requester, appt)) })
	})
	if err != nil {
		return model.Appointment{}, err
	}

	w.logger.Info("appointment created", "appointment_id", appt.ID, "provider_id", appt.ProviderID, "date", appt.Date, "time", appt.Time.String())
	return appt, nil
}

// SetStatus applies a status-only transition. The reserved time does not move, so the slot
// is not re-validated.
func (w *Writer) SetStatus(ctx context.Context, requester auth.Identity, id string, to model.Status) (model.Appointment, error) {
	appt, err := w.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	staff := isStaff(requester, appt)
	if !staff && !(isOwner(requester, appt) && to == model.StatusCancelled) {
		return model.Appointment{}, ErrForbidden
	}
	if !model.CanTransition(appt.Status, to) {
		return model.Appointment{}, illegal(appt.Status, to)
	}
	if !staff {
		if err := w.checkCancellationWindow(ctx, appt); err != nil {
			return model.Appointment{}, err
		}
	}

	from := appt.Status
	appt.Status = to
	appt.UpdatedAt = w.now().UTC()
	err = w.store.WithBookingLock(ctx, appt.ProviderID, appt.Date, func(tx Tx) error {
		if err := tx.UpdateStatus(ctx, id, from, to); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if to != model.StatusConfirmed && to != model.StatusCancelled {
			return nil
		}
		return w.notify(func(n Notifier) error { return n.StatusChanged(ctx, tx, appt, from, roleOf(requester, appt)) })
	})
	if err != nil {
		return model.Appointment{}, err
	}

	w.logger.Info("appointment status changed", "appointment_id", id, "from", string(from), "to", string(to))
	return appt, nil
}

// Reschedule moves an appointment to a new date and time and resets it to pending so the
// provider confirms again.
func (w *Writer) Reschedule(ctx context.Context, requester auth.Identity, id, date, at string) (model.Appointment, error) {
	appt, err := w.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	staff := isStaff(requester, appt)
	if !staff && !isOwner(requester, appt) {
		return model.Appointment{}, ErrForbidden
	}
	if !model.CanReschedule(appt.Status) {
		return model.Appointment{}, illegal(appt.Status, model.StatusPending)
	}
	if !staff {
		if err := w.checkCancellationWindow(ctx, appt); err != nil {
			return model.Appointment{}, err
		}
	}
	newTime, err := model.ParseClock(at)
	if err != nil {
		return model.Appointment{}, &SlotError{Reason: scheduling.ReasonUnavailable, Message: "invalid time"}
	}

	prev := appt
	appt.Date = date
	appt.Time = newTime
	appt.Status = model.StatusPending
	appt.UpdatedAt = w.now().UTC()
	err = w.store.WithBookingLock(ctx, appt.ProviderID, date, func(tx Tx) error {
		res := w.validator.ValidateSlotWith(ctx, tx, scheduling.ValidateRequest{
			ProviderID:          appt.ProviderID,
			ServiceID:           appt.ServiceID,
			EmployeeID:          appt.EmployeeID,
			Date:                date,
			Time:                at,
			IgnoreAppointmentID: appt.ID,
		})
		if !res.OK {
			return &SlotError{Reason: res.Reason, Message: res.Message}
		}
		if err := tx.MoveAppointment(ctx, appt.ID, date, newTime, prev.Status); err != nil {
			return err
		}
		return w.notify(func(n Notifier) error { return n.Rescheduled(ctx, tx, appt, prev, roleOf(requester, appt)) })
	})
	if err != nil {
		return model.Appointment{}, err
	}

	w.logger.Info("appointment rescheduled", "appointment_id", id, "date", date, "time", newTime.String())
	return appt, nil
}

// checkCancellationWindow refuses client-initiated changes closer to the start than the
// provider's cancellation policy.
func (w *Writer) checkCancellationWindow(ctx context.Context, appt model.Appointment) error {
	policy, err := w.settings.Settings(ctx, appt.ProviderID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	start, err := appt.StartsAt(w.loc)
	if err != nil {
		return fmt.Errorf("appointment start: %w", err)
	}
	cutoff := start.Add(-time.Duration(policy.CancellationPolicyHours) * time.Hour)
	if w.now().After(cutoff) {
		return ErrCancellationWindow
	}
	return nil
}

func (w *Writer) notify(fn func(Notifier) error) error {
	if w.notifier == nil {
		return nil
	}
	if err := fn(w.notifier); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func isStaff(id auth.Identity, appt model.Appointment) bool {
	return id.IsProvider() && id.ProviderID == appt.ProviderID
}

func isOwner(id auth.Identity, appt model.Appointment) bool {
	return id.UserID != "" && id.UserID == appt.ClientID
}

func roleOf(id auth.Identity, appt model.Appointment) model.Role {
	if isStaff(id, appt) {
		return model.RoleProvider
	}
	return model.RoleClient
}
