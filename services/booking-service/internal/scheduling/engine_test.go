package scheduling_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/availability"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/agendave/agendave/services/booking-service/internal/storage"
)

const (
	monday  = "2026-03-02"
	tuesday = "2026-03-03"
)

func mustClock(t *testing.T, s string) model.Clock {
	t.Helper()
	c, err := model.ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

type fixture struct {
	store  *storage.Memory
	engine *scheduling.Engine
}

func newFixture(t *testing.T, cfg scheduling.Config) *fixture {
	t.Helper()
	store := storage.NewMemory()
	store.PutService(model.Service{ID: "svc-60", ProviderID: "p1", DurationMinutes: 60, Active: true})
	store.PutService(model.Service{ID: "svc-30", ProviderID: "p1", DurationMinutes: 30, Active: true})
	store.PutService(model.Service{ID: "svc-off", ProviderID: "p1", DurationMinutes: 30, Active: false})
	if err := store.ReplaceWeeklySchedule(context.Background(), model.ProviderScope("p1"), []model.AvailabilityWindow{
		{Weekday: time.Monday, Start: mustClock(t, "09:00"), End: mustClock(t, "12:00"), Active: true},
	}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	return &fixture{store: store, engine: newEngine(store, store, cfg)}
}

func newEngine(store *storage.Memory, ledger scheduling.Ledger, cfg scheduling.Config) *scheduling.Engine {
	return scheduling.NewEngine(cfg, scheduling.Deps{
		Windows:  availability.NewSource(store),
		Ledger:   ledger,
		Catalog:  store,
		Settings: settings.NewStoreSource(store, settings.DefaultLimits),
	})
}

func (f *fixture) book(t *testing.T, id, date, at string, employeeID string, status model.Status) {
	t.Helper()
	f.store.PutAppointment(model.Appointment{
		ID:         id,
		ClientID:   "client-" + id,
		ProviderID: "p1",
		ServiceID:  "svc-60",
		EmployeeID: employeeID,
		Date:       date,
		Time:       mustClock(t, at),
		Status:     status,
	})
}

func (f *fixture) setBuffers(t *testing.T, before, after int, allowOverlaps bool) {
	t.Helper()
	if err := f.store.SaveSettings(context.Background(), "p1", settings.SchedulingSettings{
		BufferBeforeMinutes: before,
		BufferAfterMinutes:  after,
		AllowOverlaps:       allowOverlaps,
	}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
}

func assertSlots(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestGenerateSlots_EmptyDay(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00", "09:30", "10:00", "10:30", "11:00")
}

func TestGenerateSlots_ExistingAppointment(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "10:00", "", model.StatusConfirmed)
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00", "11:00")
}

func TestGenerateSlots_BufferAfter(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "10:00", "", model.StatusPending)
	f.setBuffers(t, 0, 15, false)
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00")
}

func TestGenerateSlots_NoWindow(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), tuesday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", slots)
	}
}

func TestGenerateSlots_TerminalAppointmentsDoNotBlock(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "10:00", "", model.StatusCancelled)
	f.book(t, "a2", monday, "09:00", "", model.StatusDone)
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00", "09:30", "10:00", "10:30", "11:00")
}

func TestGenerateSlots_MissingServiceFallsBackToSixtyMinutes(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.store.PutAppointment(model.Appointment{
		ID: "a1", ProviderID: "p1", ServiceID: "deleted", Date: monday,
		Time: mustClock(t, "10:00"), Status: model.StatusConfirmed,
	})
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 30)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00", "09:30", "11:00", "11:30")
}

func TestGenerateSlots_Idempotent(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "09:30", "", model.StatusConfirmed)
	first, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 30)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	second, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 30)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, second, first...)
}

func TestGenerateSlots_NoOverlapAndBoundary(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "09:30", "", model.StatusConfirmed)
	f.book(t, "a2", monday, "11:00", "", model.StatusPending)
	for _, duration := range []int{30, 45, 60, 90} {
		slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, duration)
		if err != nil {
			t.Fatalf("GenerateSlots(%d): %v", duration, err)
		}
		for _, s := range slots {
			start := mustClock(t, s)
			end := start.Add(duration)
			if end > mustClock(t, "12:00") {
				t.Fatalf("slot %s (%d min) overruns the window", s, duration)
			}
			for _, busy := range []string{"09:30", "11:00"} {
				b := mustClock(t, busy)
				if start < b.Add(60) && end > b {
					t.Fatalf("slot %s (%d min) overlaps booking at %s", s, duration, busy)
				}
			}
		}
	}
}

func TestGenerateSlots_BufferMonotonicity(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "10:00", "", model.StatusConfirmed)
	prev := -1
	for _, buffer := range []int{0, 15, 30, 45, 60, 120} {
		f.setBuffers(t, buffer, buffer, false)
		slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 30)
		if err != nil {
			t.Fatalf("GenerateSlots: %v", err)
		}
		if prev >= 0 && len(slots) > prev {
			t.Fatalf("buffer %d produced %d slots, more than %d before", buffer, len(slots), prev)
		}
		prev = len(slots)
	}
}

func TestGenerateSlots_AllowOverlapsIgnoresLedger(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	f.book(t, "a1", monday, "10:00", "", model.StatusConfirmed)
	f.setBuffers(t, 30, 30, true)
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "09:00", "09:30", "10:00", "10:30", "11:00")
}

func TestGenerateSlots_EmployeeScope(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	ctx := context.Background()
	f.store.PutEmployee(model.Employee{ID: "e1", ProviderID: "p1", CustomScheduleEnabled: true})
	f.store.PutEmployee(model.Employee{ID: "e2", ProviderID: "p1"})
	f.store.PutEmployee(model.Employee{ID: "e3", ProviderID: "other"})
	if err := f.store.ReplaceWeeklySchedule(ctx, model.EmployeeScope("p1", "e1"), []model.AvailabilityWindow{
		{Weekday: time.Monday, Start: mustClock(t, "13:00"), End: mustClock(t, "15:00"), Active: true},
	}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	// Booked with e2 only, so it blocks e2 and the provider-wide view but not e1.
	f.book(t, "a1", monday, "09:00", "e2", model.StatusConfirmed)

	slots, err := f.engine.GenerateSlots(ctx, model.EmployeeScope("p1", "e1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots e1: %v", err)
	}
	assertSlots(t, slots, "13:00", "13:30", "14:00")

	slots, err = f.engine.GenerateSlots(ctx, model.EmployeeScope("p1", "e2"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots e2: %v", err)
	}
	assertSlots(t, slots, "10:00", "10:30", "11:00")

	slots, err = f.engine.GenerateSlots(ctx, model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots provider: %v", err)
	}
	assertSlots(t, slots, "10:00", "10:30", "11:00")

	for _, id := range []string{"e3", "missing"} {
		slots, err = f.engine.GenerateSlots(ctx, model.EmployeeScope("p1", id), monday, 60)
		if err != nil || len(slots) != 0 {
			t.Fatalf("expected no availability for %s, got %v err=%v", id, slots, err)
		}
	}
}

func TestGenerateSlots_HidePast(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)
	f := newFixture(t, scheduling.Config{HidePastSlots: true, Now: func() time.Time { return now }})
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	assertSlots(t, slots, "10:30", "11:00")

	slots, err = f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), "2026-02-23", 60)
	if err != nil || len(slots) != 0 {
		t.Fatalf("expected no slots on a past day, got %v err=%v", slots, err)
	}
}

func TestGenerateSlots_InvalidInput(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	if _, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), "03/02/2026", 60); !errors.Is(err, scheduling.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	for _, d := range []int{0, 1441, math.MaxInt - 100} {
		if _, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, d); !errors.Is(err, scheduling.ErrInvalidDuration) {
			t.Fatalf("duration %d: expected ErrInvalidDuration, got %v", d, err)
		}
	}
}

func TestGenerateSlots_FullDayDuration(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	slots, err := f.engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 1440)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("a day-long booking cannot fit a 09:00-12:00 window, got %v", slots)
	}
}

func TestGenerateSlotsForService(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	slots, err := f.engine.GenerateSlotsForService(context.Background(), model.ProviderScope("p1"), monday, "svc-60")
	if err != nil {
		t.Fatalf("GenerateSlotsForService: %v", err)
	}
	assertSlots(t, slots, "09:00", "09:30", "10:00", "10:30", "11:00")
	if _, err := f.engine.GenerateSlotsForService(context.Background(), model.ProviderScope("p1"), monday, "svc-off"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive service, got %v", err)
	}
}

type failingLedger struct{}

func (failingLedger) ListOccupying(context.Context, model.OwnerScope, string) ([]model.Occupying, error) {
	return nil, errors.New("connection reset")
}

func TestGenerateSlots_LedgerErrorPropagates(t *testing.T) {
	f := newFixture(t, scheduling.Config{})
	engine := newEngine(f.store, failingLedger{}, scheduling.Config{})
	slots, err := engine.GenerateSlots(context.Background(), model.ProviderScope("p1"), monday, 60)
	if err == nil {
		t.Fatal("expected error")
	}
	if slots != nil {
		t.Fatalf("expected no partial result, got %v", slots)
	}
}
