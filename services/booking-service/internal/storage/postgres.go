package storage

import (
	"context"
	_ "embed"
	"time"

	"github.com/agendave/agendave/libs/db"
	"github.com/agendave/agendave/services/booking-service/internal/booking"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var Schema string

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool   *db.Pool
	events *outbox.Repository
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, events: outbox.NewRepository(pool)}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return p.pool.Migrate(ctx, Schema)
}

func (p *Postgres) Service(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := p.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, active
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.ProviderID, &s.Name, &s.DurationMinutes, &s.Active)
	if db.IsNotFound(err) {
		return model.Service{}, model.ErrNotFound
	}
	return s, err
}

func (p *Postgres) Employee(ctx context.Context, id string) (model.Employee, error) {
	var e model.Employee
	err := p.pool.QueryRow(ctx, `
		SELECT id, provider_id, custom_schedule_enabled
		FROM employees
		WHERE id = $1
	`, id).Scan(&e.ID, &e.ProviderID, &e.CustomScheduleEnabled)
	if db.IsNotFound(err) {
		return model.Employee{}, model.ErrNotFound
	}
	return e, err
}

func (p *Postgres) ProviderWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return listWindows(ctx, p.pool, `
		SELECT provider_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), active
		FROM availabilities
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_time ASC, id ASC
	`, providerID, int(weekday))
}

func (p *Postgres) EmployeeWindows(ctx context.Context, employeeID string, weekday time.Weekday) ([]model.AvailabilityWindow, error) {
	return listWindows(ctx, p.pool, `
		SELECT employee_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), active
		FROM employee_availabilities
		WHERE employee_id = $1 AND weekday = $2
		ORDER BY start_time ASC, id ASC
	`, employeeID, int(weekday))
}

func listWindows(ctx context.Context, q querier, sql string, ownerID string, weekday int) ([]model.AvailabilityWindow, error) {
	rows, err := q.Query(ctx, sql, ownerID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var (
			w          model.AvailabilityWindow
			day        int
			start, end string
		)
		if err := rows.Scan(&w.OwnerID, &day, &start, &end, &w.Active); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(day)
		if w.Start, err = model.ParseClock(start); err != nil {
			return nil, err
		}
		if w.End, err = model.ParseClock(end); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

// ReplaceWeeklySchedule deletes and re-inserts the owner's whole weekly schedule in one
// transaction.
func (p *Postgres) ReplaceWeeklySchedule(ctx context.Context, scope model.OwnerScope, windows []model.AvailabilityWindow) error {
	table, column := "availabilities", "provider_id"
	if scope.IsEmployee() {
		table, column = "employee_availabilities", "employee_id"
	}
	return p.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE `+column+` = $1`, scope.OwnerID()); err != nil {
			return err
		}
		for _, w := range windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO `+table+` (`+column+`, weekday, start_time, end_time, active)
				VALUES ($1, $2, $3::time, $4::time, $5)
			`, scope.OwnerID(), int(w.Weekday), w.Start.String(), w.End.String(), w.Active); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) ListOccupying(ctx context.Context, scope model.OwnerScope, date string) ([]model.Occupying, error) {
	return listOccupying(ctx, p.pool, scope, date)
}

// listOccupying joins services at query level; a dangling service id yields duration 0.
func listOccupying(ctx context.Context, q querier, scope model.OwnerScope, date string) ([]model.Occupying, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id, to_char(a.appointment_time, 'HH24:MI'), COALESCE(s.duration_minutes, 0)
		FROM appointments a
		LEFT JOIN services s ON s.id = a.service_id
		WHERE a.provider_id = $1
			AND a.appointment_date = $2::date
			AND a.status IN ('pending', 'confirmed')
			AND ($3 = '' OR a.employee_id = $3)
		ORDER BY a.appointment_time ASC
	`, scope.ProviderID, date, scope.EmployeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Occupying
	for rows.Next() {
		var (
			o  model.Occupying
			at string
		)
		if err := rows.Scan(&o.AppointmentID, &at, &o.DurationMinutes); err != nil {
			return nil, err
		}
		if o.Time, err = model.ParseClock(at); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (p *Postgres) LoadSettings(ctx context.Context, providerID string) (settings.SchedulingSettings, error) {
	var s settings.SchedulingSettings
	err := p.pool.QueryRow(ctx, `
		SELECT buffer_before_minutes, buffer_after_minutes, allow_overlaps, cancellation_policy_hours, reminder_lead_time_minutes
		FROM scheduling_settings
		WHERE provider_id = $1
	`, providerID).Scan(&s.BufferBeforeMinutes, &s.BufferAfterMinutes, &s.AllowOverlaps, &s.CancellationPolicyHours, &s.ReminderLeadTimeMinutes)
	if db.IsNotFound(err) {
		return settings.SchedulingSettings{}, model.ErrNotFound
	}
	return s, err
}

func (p *Postgres) SaveSettings(ctx context.Context, providerID string, s settings.SchedulingSettings) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO scheduling_settings
			(provider_id, buffer_before_minutes, buffer_after_minutes, allow_overlaps, cancellation_policy_hours, reminder_lead_time_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id) DO UPDATE
		SET buffer_before_minutes = EXCLUDED.buffer_before_minutes,
			buffer_after_minutes = EXCLUDED.buffer_after_minutes,
			allow_overlaps = EXCLUDED.allow_overlaps,
			cancellation_policy_hours = EXCLUDED.cancellation_policy_hours,
			reminder_lead_time_minutes = EXCLUDED.reminder_lead_time_minutes,
			updated_at = now()
	`, providerID, s.BufferBeforeMinutes, s.BufferAfterMinutes, s.AllowOverlaps, s.CancellationPolicyHours, s.ReminderLeadTimeMinutes)
	return err
}

const appointmentColumns = `
	id, client_id, provider_id, service_id, employee_id, appointment_date::text,
	to_char(appointment_time, 'HH24:MI'), status, notes, reminder_sent_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		at     string
		status string
	)
	err := row.Scan(&a.ID, &a.ClientID, &a.ProviderID, &a.ServiceID, &a.EmployeeID, &a.Date,
		&at, &status, &a.Notes, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	if a.Time, err = model.ParseClock(at); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(p.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, err
}

// WithBookingLock holds a transaction-scoped advisory lock keyed by provider and date, so
// concurrent bookings for the same provider-day run their validate-then-write one at a time.
func (p *Postgres) WithBookingLock(ctx context.Context, providerID, date string, fn func(booking.Tx) error) error {
	return p.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+providerID+":"+date); err != nil {
			return err
		}
		return fn(postgresTx{tx: tx, events: p.events})
	})
}

type postgresTx struct {
	tx     pgx.Tx
	events *outbox.Repository
}

func (t postgresTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.events.Insert(ctx, t.tx, evt)
}

func (t postgresTx) ListOccupying(ctx context.Context, scope model.OwnerScope, date string) ([]model.Occupying, error) {
	return listOccupying(ctx, t.tx, scope, date)
}

func (t postgresTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, client_id, provider_id, service_id, employee_id, appointment_date, appointment_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::time, $8, $9, $10, $11)
	`, a.ID, a.ClientID, a.ProviderID, a.ServiceID, a.EmployeeID, a.Date, a.Time.String(), string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt)
	return err
}

func (t postgresTx) MoveAppointment(ctx context.Context, id, date string, at model.Clock, from model.Status) error {
	return compareAndSet(ctx, t.tx, id, func(q querier) (pgconn.CommandTag, error) {
		return q.Exec(ctx, `
			UPDATE appointments
			SET appointment_date = $2::date, appointment_time = $3::time, status = 'pending', updated_at = now()
			WHERE id = $1 AND status = $4
		`, id, date, at.String(), string(from))
	})
}

func (t postgresTx) UpdateStatus(ctx context.Context, id string, from, to model.Status) error {
	return compareAndSet(ctx, t.tx, id, func(q querier) (pgconn.CommandTag, error) {
		return q.Exec(ctx, `
			UPDATE appointments
			SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, string(from), string(to))
	})
}

// compareAndSet runs a guarded update and tells a missing row apart from a stale status.
func compareAndSet(ctx context.Context, q querier, id string, update func(querier) (pgconn.CommandTag, error)) error {
	tag, err := update(q)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return booking.ErrStaleStatus
}

// ListReminderCandidates pages confirmed, unreminded appointments in (date, time, id) order,
// starting strictly after the cursor and ending with toDate.
func (p *Postgres) ListReminderCandidates(ctx context.Context, after model.ReminderCursor, toDate string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND reminder_sent_at IS NULL
			AND appointment_date <= $4::date
			AND (appointment_date, appointment_time, id) > ($1::date, $2::time, $3::text)
		ORDER BY appointment_date ASC, appointment_time ASC, id ASC
		LIMIT $5
	`, after.Date, after.Time.String(), after.ID, toDate, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

// MarkReminderSent claims the reminder and writes the events emit appends in one
// transaction. It reports false when another sweep got there first.
func (p *Postgres) MarkReminderSent(ctx context.Context, id string, at time.Time, emit func(outbox.Appender) error) (bool, error) {
	claimed := false
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET reminder_sent_at = $2
			WHERE id = $1 AND reminder_sent_at IS NULL
		`, id, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if err := emit(postgresTx{tx: tx, events: p.events}); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}
