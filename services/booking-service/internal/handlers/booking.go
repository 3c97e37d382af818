package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/libs/httpx"
	"github.com/agendave/agendave/services/booking-service/internal/booking"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/scheduling"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
	"github.com/go-playground/validator/v10"
)

type SlotEngine interface {
	GenerateSlots(ctx context.Context, scope model.OwnerScope, date string, durationMinutes int) ([]string, error)
	GenerateSlotsForService(ctx context.Context, scope model.OwnerScope, date, serviceID string) ([]string, error)
	ValidateSlot(ctx context.Context, req scheduling.ValidateRequest) scheduling.Result
}

type AppointmentWriter interface {
	Create(ctx context.Context, requester auth.Identity, req booking.CreateRequest) (model.Appointment, error)
	SetStatus(ctx context.Context, requester auth.Identity, id string, to model.Status) (model.Appointment, error)
	Reschedule(ctx context.Context, requester auth.Identity, id, date, at string) (model.Appointment, error)
}

type SettingsSaver interface {
	Save(ctx context.Context, providerID string, s settings.SchedulingSettings) (settings.SchedulingSettings, error)
}

type SettingsInvalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

type ScheduleStore interface {
	ReplaceWeeklySchedule(ctx context.Context, scope model.OwnerScope, windows []model.AvailabilityWindow) error
	Employee(ctx context.Context, id string) (model.Employee, error)
}

type Deps struct {
	Engine    SlotEngine
	Writer    AppointmentWriter
	Settings  settings.Source
	Saver     SettingsSaver
	Cache     SettingsInvalidator
	Schedules ScheduleStore
}

type BookingHandler struct {
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
}

func NewBookingHandler(deps Deps, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{deps: deps, logger: logger, validate: validator.New()}
}

// Register mounts public routes as-is and wraps the rest with authn.
func (h *BookingHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/slots/validate", h.Validate)
	mux.Handle("/api/v1/appointments", authn(http.HandlerFunc(h.Create)))
	mux.Handle("/api/v1/appointments/status", authn(http.HandlerFunc(h.SetStatus)))
	mux.Handle("/api/v1/appointments/reschedule", authn(http.HandlerFunc(h.Reschedule)))
	mux.Handle("/api/v1/providers/settings", authn(http.HandlerFunc(h.ProviderSettings)))
	mux.Handle("/api/v1/schedules", authn(http.HandlerFunc(h.ReplaceSchedule)))
}

type slotsQuery struct {
	ProviderID      string `validate:"required"`
	EmployeeID      string
	ServiceID       string `validate:"required_without=DurationMinutes"`
	DurationMinutes int    `validate:"omitempty,min=1,max=1440"`
	Date            string `validate:"required,datetime=2006-01-02"`
}

type slotsResponse struct {
	ProviderID string   `json:"provider_id"`
	EmployeeID string   `json:"employee_id,omitempty"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	query := slotsQuery{
		ProviderID: strings.TrimSpace(q.Get("provider_id")),
		EmployeeID: strings.TrimSpace(q.Get("employee_id")),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
			return
		}
		query.DurationMinutes = d
	}
	if err := h.validate.Struct(query); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	scope := model.OwnerScope{ProviderID: query.ProviderID, EmployeeID: query.EmployeeID}
	var (
		slots []string
		err   error
	)
	if query.ServiceID != "" {
		slots, err = h.deps.Engine.GenerateSlotsForService(r.Context(), scope, query.Date, query.ServiceID)
	} else {
		slots, err = h.deps.Engine.GenerateSlots(r.Context(), scope, query.Date, query.DurationMinutes)
	}
	switch {
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "service not found")
		return
	case errors.Is(err, scheduling.ErrInvalidDate), errors.Is(err, scheduling.ErrInvalidDuration):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		// Listing is best-effort: show no slots rather than fail the page.
		h.logger.Error("slot generation failed", "provider_id", scope.ProviderID, "date", query.Date, "err", err)
		slots = []string{}
	}

	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ProviderID: scope.ProviderID,
		EmployeeID: scope.EmployeeID,
		Date:       query.Date,
		Slots:      slots,
	})
}

type validateRequest struct {
	ProviderID          string `json:"provider_id" validate:"required"`
	ServiceID           string `json:"service_id" validate:"required"`
	EmployeeID          string `json:"employee_id"`
	Date                string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time                string `json:"appointment_time" validate:"required,datetime=15:04"`
	IgnoreAppointmentID string `json:"ignore_appointment_id"`
}

// Validate always answers 200; the verdict is in the body.
func (h *BookingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req validateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res := h.deps.Engine.ValidateSlot(r.Context(), scheduling.ValidateRequest{
		ProviderID:          req.ProviderID,
		ServiceID:           req.ServiceID,
		EmployeeID:          req.EmployeeID,
		Date:                req.Date,
		Time:                req.Time,
		IgnoreAppointmentID: req.IgnoreAppointmentID,
	})
	if res.Reason == scheduling.ReasonError {
		h.logger.Warn("slot validation could not complete", "provider_id", req.ProviderID, "message", res.Message)
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type createRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
	ServiceID  string `json:"service_id" validate:"required"`
	EmployeeID string `json:"employee_id"`
	Date       string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time       string `json:"appointment_time" validate:"required,datetime=15:04"`
	Notes      string `json:"notes" validate:"max=2000"`
}

type appointmentResponse struct {
	ID         string `json:"appointment_id"`
	ClientID   string `json:"client_id"`
	ProviderID string `json:"provider_id"`
	ServiceID  string `json:"service_id"`
	EmployeeID string `json:"employee_id,omitempty"`
	Date       string `json:"appointment_date"`
	Time       string `json:"appointment_time"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:         a.ID,
		ClientID:   a.ClientID,
		ProviderID: a.ProviderID,
		ServiceID:  a.ServiceID,
		EmployeeID: a.EmployeeID,
		Date:       a.Date,
		Time:       a.Time.String(),
		Status:     string(a.Status),
		Notes:      a.Notes,
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		resp.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.deps.Writer.Create(r.Context(), requester, booking.CreateRequest{
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		EmployeeID: req.EmployeeID,
		Date:       req.Date,
		Time:       req.Time,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=pending confirmed cancelled done"`
}

func (h *BookingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.deps.Writer.SetStatus(r.Context(), requester, req.AppointmentID, model.Status(req.Status))
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required"`
	Date          string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time          string `json:"appointment_time" validate:"required,datetime=15:04"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	appt, err := h.deps.Writer.Reschedule(r.Context(), requester, req.AppointmentID, req.Date, req.Time)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type slotErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	var slotErr *booking.SlotError
	switch {
	case errors.As(err, &slotErr):
		status := http.StatusConflict
		switch slotErr.Reason {
		case scheduling.ReasonUnavailable:
			status = http.StatusUnprocessableEntity
		case scheduling.ReasonError:
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, slotErrorResponse{Error: "slot rejected", Reason: string(slotErr.Reason), Message: slotErr.Message})
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrIllegalTransition), errors.Is(err, booking.ErrStaleStatus):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrCancellationWindow):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("appointment write failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
