package settings

import (
	"context"
	"errors"

	"github.com/agendave/agendave/services/booking-service/internal/model"
)

// SchedulingSettings is the per-provider booking policy.
type SchedulingSettings struct {
	BufferBeforeMinutes     int  `json:"buffer_before_minutes"`
	BufferAfterMinutes      int  `json:"buffer_after_minutes"`
	AllowOverlaps           bool `json:"allow_overlaps"`
	CancellationPolicyHours int  `json:"cancellation_policy_hours"`
	ReminderLeadTimeMinutes int  `json:"reminder_lead_time_minutes"`
}

type Limits struct {
	MaxBufferMinutes           int
	MaxCancellationPolicyHours int
	MaxReminderLeadTimeMinutes int
}

var DefaultLimits = Limits{
	MaxBufferMinutes:           240,
	MaxCancellationPolicyHours: 168,
	MaxReminderLeadTimeMinutes: 4320,
}

// Defaults apply to providers that never saved settings.
func Defaults() SchedulingSettings {
	return SchedulingSettings{
		CancellationPolicyHours: 24,
		ReminderLeadTimeMinutes: 1440,
	}
}

// Clamp pulls every value into its allowed range. Out-of-range input is never rejected.
func (s SchedulingSettings) Clamp(l Limits) SchedulingSettings {
	s.BufferBeforeMinutes = clamp(s.BufferBeforeMinutes, l.MaxBufferMinutes)
	s.BufferAfterMinutes = clamp(s.BufferAfterMinutes, l.MaxBufferMinutes)
	s.CancellationPolicyHours = clamp(s.CancellationPolicyHours, l.MaxCancellationPolicyHours)
	s.ReminderLeadTimeMinutes = clamp(s.ReminderLeadTimeMinutes, l.MaxReminderLeadTimeMinutes)
	return s
}

func clamp(v, upper int) int {
	if v < 0 {
		return 0
	}
	if v > upper {
		return upper
	}
	return v
}

// Store persists settings rows. LoadSettings returns model.ErrNotFound when the provider has none.
type Store interface {
	LoadSettings(ctx context.Context, providerID string) (SchedulingSettings, error)
	SaveSettings(ctx context.Context, providerID string, s SchedulingSettings) error
}

// Source resolves the effective settings for a provider.
type Source interface {
	Settings(ctx context.Context, providerID string) (SchedulingSettings, error)
}

// StoreSource applies defaults and clamping on top of a Store.
type StoreSource struct {
	store  Store
	limits Limits
}

func NewStoreSource(store Store, limits Limits) *StoreSource {
	return &StoreSource{store: store, limits: limits}
}

func (s *StoreSource) Settings(ctx context.Context, providerID string) (SchedulingSettings, error) {
	loaded, err := s.store.LoadSettings(ctx, providerID)
	if errors.Is(err, model.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return SchedulingSettings{}, err
	}
	return loaded.Clamp(s.limits), nil
}

// Save clamps and persists.
func (s *StoreSource) Save(ctx context.Context, providerID string, in SchedulingSettings) (SchedulingSettings, error) {
	clamped := in.Clamp(s.limits)
	if err := s.store.SaveSettings(ctx, providerID, clamped); err != nil {
		return SchedulingSettings{}, err
	}
	return clamped, nil
}
