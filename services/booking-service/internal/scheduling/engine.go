package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/availability"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidDuration = errors.New("duration must be between 1 and 1440 minutes")
)

// WindowSource resolves the weekly window for an owner.
type WindowSource interface {
	ResolveWindow(ctx context.Context, scope model.OwnerScope, weekday time.Weekday, useCustomSchedule bool) (*model.AvailabilityWindow, error)
}

// Ledger lists the pending and confirmed appointments of an owner on a date. A provider scope
// covers every employee of the provider; an employee scope covers that employee only.
// DurationMinutes is 0 when the linked service could not be resolved.
type Ledger interface {
	ListOccupying(ctx context.Context, scope model.OwnerScope, date string) ([]model.Occupying, error)
}

// Catalog returns model.ErrNotFound for unknown ids.
type Catalog interface {
	Service(ctx context.Context, id string) (model.Service, error)
	Employee(ctx context.Context, id string) (model.Employee, error)
}

type Config struct {
	SlotIncrementMinutes    int
	FallbackDurationMinutes int
	// HidePastSlots drops today's candidates that already started.
	HidePastSlots bool
	Location      *time.Location
	Now           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		SlotIncrementMinutes:    30,
		FallbackDurationMinutes: 60,
		Location:                time.UTC,
		Now:                     time.Now,
	}
}

type Deps struct {
	Windows  WindowSource
	Ledger   Ledger
	Catalog  Catalog
	Settings settings.Source
}

// Engine computes bookable slots and validates single candidates. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	cfg    Config
	deps   Deps
	tracer trace.Tracer
}

func NewEngine(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.SlotIncrementMinutes <= 0 {
		cfg.SlotIncrementMinutes = def.SlotIncrementMinutes
	}
	if cfg.FallbackDurationMinutes <= 0 {
		cfg.FallbackDurationMinutes = def.FallbackDurationMinutes
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Engine{cfg: cfg, deps: deps, tracer: otel.Tracer("booking-service/scheduling")}
}

func (e *Engine) Config() Config { return e.cfg }

// GenerateSlots lists the HH:MM start times an owner can take a booking of durationMinutes on
// date. No window for the weekday yields an empty list. Any read failure is returned without
// partial results.
func (e *Engine) GenerateSlots(ctx context.Context, scope model.OwnerScope, date string, durationMinutes int) (slots []string, err error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.GenerateSlots", trace.WithAttributes(
		attribute.String("provider_id", scope.ProviderID),
		attribute.String("employee_id", scope.EmployeeID),
		attribute.String("date", date),
		attribute.Int("duration_minutes", durationMinutes),
	))
	defer func() { endSpan(span, err) }()

	if durationMinutes <= 0 || durationMinutes > int(model.EndOfDay) {
		return nil, ErrInvalidDuration
	}
	day, err := model.ParseDate(date, e.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	window, err := e.window(ctx, scope, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("resolve window: %w", err)
	}
	if window == nil {
		return []string{}, nil
	}

	policy, err := e.deps.Settings.Settings(ctx, scope.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var busy []availability.Interval
	if !policy.AllowOverlaps {
		occupying, err := e.deps.Ledger.ListOccupying(ctx, scope, date)
		if err != nil {
			return nil, fmt.Errorf("list occupying: %w", err)
		}
		busy = e.busyIntervals(occupying, policy, "")
	}

	found := availability.Slots(
		availability.Interval{Start: window.Start, End: window.End},
		durationMinutes,
		e.cfg.SlotIncrementMinutes,
		busy,
		e.notBefore(day),
	)
	slots = make([]string, 0, len(found))
	for _, s := range found {
		slots = append(slots, s.String())
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

// GenerateSlotsForService sizes the slots by the service's duration.
func (e *Engine) GenerateSlotsForService(ctx context.Context, scope model.OwnerScope, date, serviceID string) ([]string, error) {
	svc, err := e.deps.Catalog.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active || svc.ProviderID != scope.ProviderID {
		return nil, model.ErrNotFound
	}
	return e.GenerateSlots(ctx, scope, date, svc.DurationMinutes)
}

// window applies the employee's customScheduleEnabled flag. An employee that does not exist
// or belongs to another provider has no availability.
func (e *Engine) window(ctx context.Context, scope model.OwnerScope, weekday time.Weekday) (*model.AvailabilityWindow, error) {
	useCustom := false
	if scope.IsEmployee() {
		emp, err := e.deps.Catalog.Employee(ctx, scope.EmployeeID)
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if emp.ProviderID != scope.ProviderID {
			return nil, nil
		}
		useCustom = emp.CustomScheduleEnabled
	}
	return e.deps.Windows.ResolveWindow(ctx, scope, weekday, useCustom)
}

// busyIntervals widens each occupied range by the provider's buffers.
func (e *Engine) busyIntervals(occupying []model.Occupying, policy settings.SchedulingSettings, ignoreID string) []availability.Interval {
	busy := make([]availability.Interval, 0, len(occupying))
	for _, o := range occupying {
		if ignoreID != "" && o.AppointmentID == ignoreID {
			continue
		}
		d := o.DurationMinutes
		if d <= 0 {
			d = e.cfg.FallbackDurationMinutes
		}
		busy = append(busy, availability.Interval{Start: o.Time, End: o.Time.Add(d)}.
			Expand(policy.BufferBeforeMinutes, policy.BufferAfterMinutes))
	}
	return busy
}

func (e *Engine) notBefore(day time.Time) model.Clock {
	if !e.cfg.HidePastSlots {
		return 0
	}
	now := e.cfg.Now().In(e.cfg.Location)
	if now.Format(model.DateLayout) != day.Format(model.DateLayout) {
		if now.After(day) {
			return model.EndOfDay
		}
		return 0
	}
	return model.ClockOf(now)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
