package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/booking"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
)

func TestMemoryBookingLockCommitsOnlyOnSuccess(t *testing.T) {
	m := NewMemory()
	m.PutService(model.Service{ID: "svc", ProviderID: "p1", DurationMinutes: 45, Active: true})
	appt := model.Appointment{ID: "a1", ProviderID: "p1", ServiceID: "svc", Date: "2026-03-02", Time: 600, Status: model.StatusPending}
	evt := outbox.Event{AggregateID: "a1", EventType: outbox.EventAppointmentCreated}

	err := m.WithBookingLock(context.Background(), "p1", "2026-03-02", func(tx booking.Tx) error {
		if err := tx.InsertAppointment(context.Background(), appt); err != nil {
			return err
		}
		if err := tx.AppendEvent(context.Background(), evt); err != nil {
			return err
		}
		return errors.New("event payload rejected")
	})
	if err == nil {
		t.Fatal("expected the callback error")
	}
	if _, err := m.GetAppointment(context.Background(), "a1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected rolled back insert, got %v", err)
	}
	if len(m.Events()) != 0 {
		t.Fatalf("expected no events after rollback, got %+v", m.Events())
	}

	err = m.WithBookingLock(context.Background(), "p1", "2026-03-02", func(tx booking.Tx) error {
		if err := tx.InsertAppointment(context.Background(), appt); err != nil {
			return err
		}
		return tx.AppendEvent(context.Background(), evt)
	})
	if err != nil {
		t.Fatalf("WithBookingLock: %v", err)
	}
	occ, err := m.ListOccupying(context.Background(), model.ProviderScope("p1"), "2026-03-02")
	if err != nil {
		t.Fatalf("ListOccupying: %v", err)
	}
	if len(occ) != 1 || occ[0].DurationMinutes != 45 || occ[0].Time != 600 {
		t.Fatalf("unexpected occupying %+v", occ)
	}
	if events := m.Events(); len(events) != 1 || events[0].AggregateID != "a1" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestMemoryUpdateStatusCompareAndSet(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(model.Appointment{ID: "a1", ProviderID: "p1", Status: model.StatusConfirmed})
	update := func(id string, from, to model.Status) error {
		return m.WithBookingLock(context.Background(), "p1", "", func(tx booking.Tx) error {
			return tx.UpdateStatus(context.Background(), id, from, to)
		})
	}

	if err := update("a1", model.StatusPending, model.StatusCancelled); !errors.Is(err, booking.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if err := update("nope", model.StatusPending, model.StatusCancelled); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := update("a1", model.StatusConfirmed, model.StatusDone); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := m.GetAppointment(context.Background(), "a1")
	if got.Status != model.StatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}

	// A second change in the same transaction sees the first.
	err := m.WithBookingLock(context.Background(), "p1", "", func(tx booking.Tx) error {
		if err := tx.MoveAppointment(context.Background(), "a1", "2026-03-03", 540, model.StatusDone); err != nil {
			return err
		}
		return tx.UpdateStatus(context.Background(), "a1", model.StatusPending, model.StatusConfirmed)
	})
	if err != nil {
		t.Fatalf("chained updates: %v", err)
	}
	got, _ = m.GetAppointment(context.Background(), "a1")
	if got.Status != model.StatusConfirmed || got.Date != "2026-03-03" {
		t.Fatalf("unexpected appointment %+v", got)
	}
}

func TestMemoryEmployeeScopeFiltersOccupying(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(model.Appointment{ID: "a1", ProviderID: "p1", EmployeeID: "e1", Date: "2026-03-02", Time: 540, Status: model.StatusPending})
	m.PutAppointment(model.Appointment{ID: "a2", ProviderID: "p1", EmployeeID: "e2", Date: "2026-03-02", Time: 600, Status: model.StatusConfirmed})
	m.PutAppointment(model.Appointment{ID: "a3", ProviderID: "p1", Date: "2026-03-02", Time: 660, Status: model.StatusDone})

	occ, _ := m.ListOccupying(context.Background(), model.EmployeeScope("p1", "e1"), "2026-03-02")
	if len(occ) != 1 || occ[0].AppointmentID != "a1" {
		t.Fatalf("unexpected employee occupying %+v", occ)
	}
	occ, _ = m.ListOccupying(context.Background(), model.ProviderScope("p1"), "2026-03-02")
	if len(occ) != 2 || occ[0].AppointmentID != "a1" || occ[1].AppointmentID != "a2" {
		t.Fatalf("unexpected provider occupying %+v", occ)
	}
}

func TestMemoryReplaceWeeklySchedule(t *testing.T) {
	m := NewMemory()
	scope := model.ProviderScope("p1")
	err := m.ReplaceWeeklySchedule(context.Background(), scope, []model.AvailabilityWindow{
		{Weekday: time.Monday, Start: 840, End: 960, Active: true},
		{Weekday: time.Monday, Start: 540, End: 720, Active: true},
		{Weekday: time.Tuesday, Start: 540, End: 720, Active: true},
	})
	if err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	got, _ := m.ProviderWindows(context.Background(), "p1", time.Monday)
	if len(got) != 2 || got[0].Start != 540 || got[0].OwnerID != "p1" {
		t.Fatalf("unexpected monday windows %+v", got)
	}

	if err := m.ReplaceWeeklySchedule(context.Background(), scope, nil); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	if got, _ := m.ProviderWindows(context.Background(), "p1", time.Tuesday); len(got) != 0 {
		t.Fatalf("expected cleared schedule, got %+v", got)
	}
}

func TestMemoryReminderCandidates(t *testing.T) {
	m := NewMemory()
	m.PutAppointment(model.Appointment{ID: "a1", Date: "2026-03-02", Time: 600, Status: model.StatusConfirmed})
	m.PutAppointment(model.Appointment{ID: "a2", Date: "2026-03-03", Time: 540, Status: model.StatusConfirmed})
	m.PutAppointment(model.Appointment{ID: "a3", Date: "2026-03-02", Time: 540, Status: model.StatusPending})
	m.PutAppointment(model.Appointment{ID: "a4", Date: "2026-03-09", Time: 540, Status: model.StatusConfirmed})
	m.PutAppointment(model.Appointment{ID: "a5", Date: "2026-03-02", Time: 480, Status: model.StatusConfirmed})
	m.PutAppointment(model.Appointment{ID: "a0", Date: "2026-03-02", Time: 600, Status: model.StatusConfirmed})

	from := model.ReminderCursor{Date: "2026-03-02", Time: 540}
	got, _ := m.ListReminderCandidates(context.Background(), from, "2026-03-03", 10)
	if len(got) != 3 || got[0].ID != "a0" || got[1].ID != "a1" || got[2].ID != "a2" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	got, _ = m.ListReminderCandidates(context.Background(), model.CursorAt(got[0]), "2026-03-03", 1)
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected the next page to start after the cursor, got %+v", got)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	emit := func(out outbox.Appender) error {
		return out.AppendEvent(context.Background(), outbox.Event{AggregateID: "a1", EventType: outbox.EventReminderDue})
	}
	if ok, err := m.MarkReminderSent(context.Background(), "a1", at, func(outbox.Appender) error { return errors.New("boom") }); err == nil || ok {
		t.Fatalf("expected a failed emit to leave the reminder unclaimed, got %v %v", ok, err)
	}
	if ok, err := m.MarkReminderSent(context.Background(), "a1", at, emit); err != nil || !ok {
		t.Fatalf("expected first mark to win, got %v %v", ok, err)
	}
	if ok, _ := m.MarkReminderSent(context.Background(), "a1", at, emit); ok {
		t.Fatalf("expected second mark to lose")
	}
	if len(m.Events()) != 1 {
		t.Fatalf("expected one event, got %+v", m.Events())
	}
	got, _ = m.ListReminderCandidates(context.Background(), from, "2026-03-03", 10)
	if len(got) != 2 || got[0].ID != "a0" || got[1].ID != "a2" {
		t.Fatalf("expected reminded appointment to drop out, got %+v", got)
	}
}
