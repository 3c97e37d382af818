package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/libs/httpx"
	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
)

type settingsRequest struct {
	BufferBeforeMinutes     *int  `json:"buffer_before_minutes" validate:"required"`
	BufferAfterMinutes      *int  `json:"buffer_after_minutes" validate:"required"`
	AllowOverlaps           *bool `json:"allow_overlaps" validate:"required"`
	CancellationPolicyHours *int  `json:"cancellation_policy_hours" validate:"required"`
	ReminderLeadTimeMinutes *int  `json:"reminder_lead_time_minutes" validate:"required"`
}

type settingsResponse struct {
	ProviderID string                      `json:"provider_id"`
	Settings   settings.SchedulingSettings `json:"settings"`
}

// ProviderSettings reads (GET, any caller, provider_id query) or replaces (PUT, staff of the
// provider) the scheduling settings. Out-of-range values are clamped on save.
func (h *BookingHandler) ProviderSettings(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
		if providerID == "" {
			providerID = requester.ProviderID
		}
		if providerID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "provider_id is required")
			return
		}
		s, err := h.deps.Settings.Settings(r.Context(), providerID)
		if err != nil {
			h.logger.Error("load settings failed", "provider_id", providerID, "err", err)
			httpx.WriteError(w, http.StatusServiceUnavailable, "settings unavailable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, settingsResponse{ProviderID: providerID, Settings: s})

	case http.MethodPut:
		if !requester.IsProvider() {
			httpx.WriteError(w, http.StatusForbidden, "provider staff only")
			return
		}
		var req settingsRequest
		if !h.decode(w, r, &req) {
			return
		}
		saved, err := h.deps.Saver.Save(r.Context(), requester.ProviderID, settings.SchedulingSettings{
			BufferBeforeMinutes:     *req.BufferBeforeMinutes,
			BufferAfterMinutes:      *req.BufferAfterMinutes,
			AllowOverlaps:           *req.AllowOverlaps,
			CancellationPolicyHours: *req.CancellationPolicyHours,
			ReminderLeadTimeMinutes: *req.ReminderLeadTimeMinutes,
		})
		if err != nil {
			h.logger.Error("save settings failed", "provider_id", requester.ProviderID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if h.deps.Cache != nil {
			if err := h.deps.Cache.Invalidate(r.Context(), requester.ProviderID); err != nil {
				h.logger.Warn("settings cache invalidation failed", "provider_id", requester.ProviderID, "err", err)
			}
		}
		httpx.WriteJSON(w, http.StatusOK, settingsResponse{ProviderID: requester.ProviderID, Settings: saved})

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type windowRequest struct {
	Weekday   *int   `json:"weekday" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Active    *bool  `json:"active"`
}

type scheduleRequest struct {
	EmployeeID string          `json:"employee_id"`
	Windows    []windowRequest `json:"windows" validate:"max=50,dive"`
}

type scheduleResponse struct {
	ProviderID string `json:"provider_id"`
	EmployeeID string `json:"employee_id,omitempty"`
	Windows    int    `json:"windows"`
}

// ReplaceSchedule swaps the whole weekly schedule of the caller's provider, or of one of its
// employees when employee_id is set.
func (h *BookingHandler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !requester.IsProvider() {
		httpx.WriteError(w, http.StatusForbidden, "provider staff only")
		return
	}
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	scope := model.ProviderScope(requester.ProviderID)
	if id := strings.TrimSpace(req.EmployeeID); id != "" {
		emp, err := h.deps.Schedules.Employee(r.Context(), id)
		if errors.Is(err, model.ErrNotFound) || (err == nil && emp.ProviderID != requester.ProviderID) {
			httpx.WriteError(w, http.StatusNotFound, "employee not found")
			return
		}
		if err != nil {
			h.logger.Error("load employee failed", "employee_id", id, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		scope = model.EmployeeScope(requester.ProviderID, id)
	}

	windows := make([]model.AvailabilityWindow, 0, len(req.Windows))
	for _, wr := range req.Windows {
		start, err := model.ParseClock(wr.StartTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid start_time "+wr.StartTime)
			return
		}
		end, err := model.ParseClock(wr.EndTime)
		if err != nil || end <= start {
			httpx.WriteError(w, http.StatusBadRequest, "invalid end_time "+wr.EndTime)
			return
		}
		active := true
		if wr.Active != nil {
			active = *wr.Active
		}
		windows = append(windows, model.AvailabilityWindow{
			Weekday: time.Weekday(*wr.Weekday),
			Start:   start,
			End:     end,
			Active:  active,
		})
	}

	if err := h.deps.Schedules.ReplaceWeeklySchedule(r.Context(), scope, windows); err != nil {
		h.logger.Error("replace schedule failed", "provider_id", scope.ProviderID, "employee_id", scope.EmployeeID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("weekly schedule replaced", "provider_id", scope.ProviderID, "employee_id", scope.EmployeeID, "windows", len(windows))
	httpx.WriteJSON(w, http.StatusOK, scheduleResponse{ProviderID: scope.ProviderID, EmployeeID: scope.EmployeeID, Windows: len(windows)})
}
