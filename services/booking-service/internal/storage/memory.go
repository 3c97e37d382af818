package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/booking"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
)

// Memory is an in-process store implementing every data-layer interface of the service.
// It backs the service tests.
type Memory struct {
	mu           sync.Mutex
	bookMu       sync.Mutex
	services     map[string]model.Service
	employees    map[string]model.Employee
	windows      map[string][]model.AvailabilityWindow
	appointments map[string]model.Appointment
	settings     map[string]settings.SchedulingSettings
	events       []outbox.Event
}

func NewMemory() *Memory {
	return &Memory{
		services:     map[string]model.Service{},
		employees:    map[string]model.Employee{},
		windows:      map[string][]model.AvailabilityWindow{},
		appointments: map[string]model.Appointment{},
		settings:     map[string]settings.SchedulingSettings{},
	}
}

func (m *Memory) PutService(s model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *Memory) PutEmployee(e model.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
}

// PutAppointment stores an appointment as-is, bypassing the booking lock.
func (m *Memory) PutAppointment(a model.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *Memory) Service(_ context.Context, id string) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return model.Service{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) Employee(_ context.Context, id string) (model.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return model.Employee{}, model.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ProviderWindows(_ context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return m.windowsFor("provider:"+providerID, weekday), nil
}

func (m *Memory) EmployeeWindows(_ context.Context, employeeID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return m.windowsFor("employee:"+employeeID, weekday), nil
}

func (m *Memory) windowsFor(key string, weekday time.Weekday) []model.AvailabilityWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AvailabilityWindow
	for _, w := range m.windows[key] {
		if w.Weekday == weekday {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ReplaceWeeklySchedule swaps the owner's whole weekly schedule.
func (m *Memory) ReplaceWeeklySchedule(_ context.Context, scope model.OwnerScope, windows []model.AvailabilityWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "provider:" + scope.ProviderID
	if scope.IsEmployee() {
		key = "employee:" + scope.EmployeeID
	}
	rows := make([]model.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		w.OwnerID = scope.OwnerID()
		rows = append(rows, w)
	}
	m.windows[key] = rows
	return nil
}

func (m *Memory) ListOccupying(_ context.Context, scope model.OwnerScope, date string) ([]model.Occupying, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.occupyingLocked(scope, date), nil
}

func (m *Memory) occupyingLocked(scope model.OwnerScope, date string) []model.Occupying {
	var out []model.Occupying
	for _, a := range m.appointments {
		if a.ProviderID != scope.ProviderID || a.Date != date || !a.Status.Occupying() {
			continue
		}
		if scope.IsEmployee() && a.EmployeeID != scope.EmployeeID {
			continue
		}
		out = append(out, model.Occupying{
			AppointmentID:   a.ID,
			Time:            a.Time,
			DurationMinutes: m.services[a.ServiceID].DurationMinutes,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (m *Memory) LoadSettings(_ context.Context, providerID string) (settings.SchedulingSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[providerID]
	if !ok {
		return settings.SchedulingSettings{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) SaveSettings(_ context.Context, providerID string, s settings.SchedulingSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[providerID] = s
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

// Events returns the outbox events committed so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

// WithBookingLock serializes all writers behind one lock for every provider-day. Writes and
// events staged by fn are applied only when fn succeeds.
func (m *Memory) WithBookingLock(ctx context.Context, _ string, _ string, fn func(booking.Tx) error) error {
	m.bookMu.Lock()
	defer m.bookMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range tx.writes {
		m.appointments[a.ID] = a
	}
	m.events = append(m.events, tx.events...)
	return nil
}

type eventBuffer struct {
	events []outbox.Event
}

func (b *eventBuffer) AppendEvent(_ context.Context, evt outbox.Event) error {
	b.events = append(b.events, evt)
	return nil
}

type memoryTx struct {
	eventBuffer
	m      *Memory
	writes []model.Appointment
}

func (t *memoryTx) ListOccupying(ctx context.Context, scope model.OwnerScope, date string) ([]model.Occupying, error) {
	return t.m.ListOccupying(ctx, scope, date)
}

func (t *memoryTx) InsertAppointment(_ context.Context, appt model.Appointment) error {
	t.writes = append(t.writes, appt)
	return nil
}

func (t *memoryTx) MoveAppointment(ctx context.Context, id, date string, at model.Clock, from model.Status) error {
	a, err := t.current(ctx, id, from)
	if err != nil {
		return err
	}
	a.Date = date
	a.Time = at
	a.Status = model.StatusPending
	a.UpdatedAt = time.Now().UTC()
	t.writes = append(t.writes, a)
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id string, from, to model.Status) error {
	a, err := t.current(ctx, id, from)
	if err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	t.writes = append(t.writes, a)
	return nil
}

// current returns the appointment as this transaction sees it, checking its status is from.
func (t *memoryTx) current(ctx context.Context, id string, from model.Status) (model.Appointment, error) {
	for i := len(t.writes) - 1; i >= 0; i-- {
		if t.writes[i].ID == id {
			if t.writes[i].Status != from {
				return model.Appointment{}, booking.ErrStaleStatus
			}
			return t.writes[i], nil
		}
	}
	a, err := t.m.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.Status != from {
		return model.Appointment{}, booking.ErrStaleStatus
	}
	return a, nil
}

// ListReminderCandidates returns confirmed, unreminded appointments that sort after the
// cursor and start no later than toDate, in cursor order.
func (m *Memory) ListReminderCandidates(_ context.Context, after model.ReminderCursor, toDate string, limit int) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if a.Status != model.StatusConfirmed || a.ReminderSentAt != nil {
			continue
		}
		if a.Date > toDate || !after.Precedes(a) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return model.CursorAt(out[i]).Precedes(out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkReminderSent claims the reminder and records the events emit appends, all or nothing.
// It reports false when another sweep got there first.
func (m *Memory) MarkReminderSent(_ context.Context, id string, at time.Time, emit func(outbox.Appender) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if a.ReminderSentAt != nil {
		return false, nil
	}
	staged := &eventBuffer{}
	if err := emit(staged); err != nil {
		return false, err
	}
	a.ReminderSentAt = &at
	m.appointments[id] = a
	m.events = append(m.events, staged.events...)
	return true, nil
}
