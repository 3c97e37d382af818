package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/model"
	"github.com/agendave/agendave/services/booking-service/internal/outbox"
	"github.com/agendave/agendave/services/booking-service/internal/settings"
)

type Store interface {
	// ListReminderCandidates returns up to limit confirmed, unreminded appointments after the
	// cursor and on or before toDate, in cursor order.
	ListReminderCandidates(ctx context.Context, after model.ReminderCursor, toDate string, limit int) ([]model.Appointment, error)
	// MarkReminderSent claims the reminder and commits it together with the events emit
	// appends. An emit error leaves the appointment unclaimed.
	MarkReminderSent(ctx context.Context, id string, at time.Time, emit func(outbox.Appender) error) (bool, error)
}

type Notifier interface {
	ReminderDue(ctx context.Context, out outbox.Appender, appt model.Appointment) error
}

// Sweeper emits one reminder per confirmed appointment once its start is within the
// provider's reminder lead time. A lead time of 0 turns reminders off for that provider.
type Sweeper struct {
	store     Store
	settings  settings.Source
	notifier  Notifier
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
	batchSize int
}

type SweeperConfig struct {
	Location  *time.Location
	Now       func() time.Time
	BatchSize int
}

func NewSweeper(store Store, settingsSource settings.Source, notifier Notifier, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Sweeper{
		store:     store,
		settings:  settingsSource,
		notifier:  notifier,
		logger:    logger,
		loc:       cfg.Location,
		now:       cfg.Now,
		batchSize: cfg.BatchSize,
	}
}

// Sweep walks every appointment that has not started yet and falls inside the longest
// possible lead time, a page at a time, and returns the number of reminders emitted.
// Appointments of providers with reminders off are paged past, never marked.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	horizon := now.Add(time.Duration(settings.DefaultLimits.MaxReminderLeadTimeMinutes) * time.Minute).Format(model.DateLayout)
	cursor := model.ReminderCursor{Date: now.Format(model.DateLayout), Time: model.ClockOf(now)}

	leads := map[string]time.Duration{}
	sent := 0
	for {
		page, err := s.store.ListReminderCandidates(ctx, cursor, horizon, s.batchSize)
		if err != nil {
			return sent, err
		}
		for _, appt := range page {
			if s.remind(ctx, now, appt, leads) {
				sent++
			}
		}
		if len(page) < s.batchSize {
			return sent, nil
		}
		cursor = model.CursorAt(page[len(page)-1])
		if err := ctx.Err(); err != nil {
			return sent, err
		}
	}
}

// remind emits the reminder for appt when its start is within the provider's lead time.
func (s *Sweeper) remind(ctx context.Context, now time.Time, appt model.Appointment, leads map[string]time.Duration) bool {
	start, err := appt.StartsAt(s.loc)
	if err != nil || !start.After(now) {
		return false
	}
	lead, ok := leads[appt.ProviderID]
	if !ok {
		policy, err := s.settings.Settings(ctx, appt.ProviderID)
		if err != nil {
			s.logger.Warn("reminder settings unavailable", "provider_id", appt.ProviderID, "err", err)
			return false
		}
		lead = time.Duration(policy.ReminderLeadTimeMinutes) * time.Minute
		leads[appt.ProviderID] = lead
	}
	if lead <= 0 || start.Sub(now) > lead {
		return false
	}

	marked, err := s.store.MarkReminderSent(ctx, appt.ID, now.UTC(), func(out outbox.Appender) error {
		return s.notifier.ReminderDue(ctx, out, appt)
	})
	if err != nil {
		s.logger.Error("reminder enqueue failed", "appointment_id", appt.ID, "err", err)
		return false
	}
	return marked
}
