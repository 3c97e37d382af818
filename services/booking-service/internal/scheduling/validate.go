package scheduling

import (
	"context"
	"errors"

	"github.com/agendave/agendave/services/booking-service/internal/availability"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Reason string

const (
	ReasonConflict Reason = "conflict"
	// ReasonError means the check could not be completed. Callers block the booking the same
	// way they do for a conflict.
	ReasonError Reason = "error"
	// ReasonUnavailable covers times that are not bookable slots at all.
	ReasonUnavailable Reason = "unavailable"
)

type ValidateRequest struct {
	ProviderID          string
	ServiceID           string
	Date                string
	Time                string
	EmployeeID          string
	IgnoreAppointmentID string
}

func (r ValidateRequest) Scope() model.OwnerScope {
	return model.OwnerScope{ProviderID: r.ProviderID, EmployeeID: r.EmployeeID}
}

// Result echoes the settings the decision was made with.
type Result struct {
	OK       bool                        `json:"ok"`
	Reason   Reason                      `json:"reason,omitempty"`
	Message  string                      `json:"message,omitempty"`
	Settings settings.SchedulingSettings `json:"settings"`
}

// ValidateSlot re-checks one candidate against the current ledger.
func (e *Engine) ValidateSlot(ctx context.Context, req ValidateRequest) Result {
	return e.ValidateSlotWith(ctx, e.deps.Ledger, req)
}

// ValidateSlotWith re-checks one candidate against the given ledger, which lets a writer
// validate inside its own transaction.
func (e *Engine) ValidateSlotWith(ctx context.Context, ledger Ledger, req ValidateRequest) (res Result) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ValidateSlot", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("employee_id", req.EmployeeID),
		attribute.String("date", req.Date),
		attribute.String("time", req.Time),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("ok", res.OK), attribute.String("reason", string(res.Reason)))
		span.End()
	}()

	policy, err := e.deps.Settings.Settings(ctx, req.ProviderID)
	if err != nil {
		span.RecordError(err)
		return failed(ReasonError, "could not load scheduling settings, please retry", settings.Defaults())
	}

	day, err := model.ParseDate(req.Date, e.cfg.Location)
	if err != nil {
		return failed(ReasonUnavailable, "invalid date", policy)
	}
	start, err := model.ParseClock(req.Time)
	if err != nil {
		return failed(ReasonUnavailable, "invalid time", policy)
	}

	svc, err := e.deps.Catalog.Service(ctx, req.ServiceID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && (!svc.Active || svc.ProviderID != req.ProviderID)) {
		return failed(ReasonUnavailable, "service is not offered by this provider", policy)
	}
	if err != nil {
		span.RecordError(err)
		return failed(ReasonError, "could not load the service, please retry", policy)
	}
	duration := svc.DurationMinutes
	if duration <= 0 {
		duration = e.cfg.FallbackDurationMinutes
	}

	window, err := e.window(ctx, req.Scope(), day.Weekday())
	if err != nil {
		span.RecordError(err)
		return failed(ReasonError, "could not load availability, please retry", policy)
	}
	if window == nil {
		return failed(ReasonUnavailable, "no availability on this day", policy)
	}
	bounds := availability.Interval{Start: window.Start, End: window.End}
	if !availability.Aligned(bounds, duration, e.cfg.SlotIncrementMinutes, start) {
		return failed(ReasonUnavailable, "this time is not a bookable slot", policy)
	}
	if start < e.notBefore(day) {
		return failed(ReasonUnavailable, "this time has already passed", policy)
	}

	if policy.AllowOverlaps {
		return Result{OK: true, Settings: policy}
	}

	occupying, err := ledger.ListOccupying(ctx, req.Scope(), req.Date)
	if err != nil {
		span.RecordError(err)
		return failed(ReasonError, "could not check existing bookings, please retry", policy)
	}
	end := start.Add(duration)
	for _, b := range e.busyIntervals(occupying, policy, req.IgnoreAppointmentID) {
		if b.Overlaps(start, end) {
			return failed(ReasonConflict, "this time was just taken, please pick another", policy)
		}
	}
	return Result{OK: true, Settings: policy}
}

func failed(reason Reason, msg string, s settings.SchedulingSettings) Result {
	return Result{OK: false, Reason: reason, Message: msg, Settings: s}
}
