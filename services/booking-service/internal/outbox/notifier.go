package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/model"
)

// Appender writes events as part of the caller's transaction, so an event exists exactly
// when the change it describes was committed.
type Appender interface {
	AppendEvent(ctx context.Context, evt Event) error
}

// Notifier turns booking changes into outbox events for the notification service.
type Notifier struct {
	loc *time.Location
	now func() time.Time
}

func NewNotifier(loc *time.Location) *Notifier {
	return newNotifier(loc, time.Now)
}

func newNotifier(loc *time.Location, now func() time.Time) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{loc: loc, now: now}
}

func (n *Notifier) AppointmentCreated(ctx context.Context, out Appender, appt model.Appointment, by model.Role) error {
	p := n.payload(appt)
	p.ActorRole = string(by)
	return n.emit(ctx, out, EventAppointmentCreated, p)
}

func (n *Notifier) StatusChanged(ctx context.Context, out Appender, appt model.Appointment, from model.Status, by model.Role) error {
	p := n.payload(appt)
	p.ActorRole = string(by)
	p.PreviousStatus = string(from)
	return n.emit(ctx, out, EventAppointmentStatusChanged, p)
}

func (n *Notifier) Rescheduled(ctx context.Context, out Appender, appt model.Appointment, prev model.Appointment, by model.Role) error {
	p := n.payload(appt)
	p.ActorRole = string(by)
	p.PreviousStatus = string(prev.Status)
	p.PreviousDate = prev.Date
	p.PreviousTime = prev.Time.String()
	return n.emit(ctx, out, EventAppointmentRescheduled, p)
}

func (n *Notifier) ReminderDue(ctx context.Context, out Appender, appt model.Appointment) error {
	return n.emit(ctx, out, EventReminderDue, n.payload(appt))
}

func (n *Notifier) payload(appt model.Appointment) AppointmentPayload {
	p := AppointmentPayload{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		ClientID:      appt.ClientID,
		ServiceID:     appt.ServiceID,
		EmployeeID:    appt.EmployeeID,
		Date:          appt.Date,
		Time:          appt.Time.String(),
		Status:        string(appt.Status),
		OccurredAt:    n.now().UTC().Format(time.RFC3339),
	}
	if start, err := appt.StartsAt(n.loc); err == nil {
		p.StartsAt = start.Format(time.RFC3339)
	}
	return p
}

func (n *Notifier) emit(ctx context.Context, out Appender, eventType string, p AppointmentPayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return out.AppendEvent(ctx, Event{
		AggregateType: "appointment",
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       raw,
	})
}
