package availability

import (
	"context"
	"time"

	"github.com/agendave/agendave/services/booking-service/internal/model"
)

// Store reads weekly availability rows. Both methods return rows ordered by start time and
// an empty result when the owner is unknown.
type Store interface {
	ProviderWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
	EmployeeWindows(ctx context.Context, employeeID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
}

type Source struct {
	store Store
}

func NewSource(store Store) *Source {
	return &Source{store: store}
}

// ResolveWindow returns the first active window for the weekday, or nil when the owner has no
// availability that day. Employee scope reads the employee's own rows only when
// useCustomSchedule is set and falls back to the provider's rows otherwise.
func (s *Source) ResolveWindow(ctx context.Context, scope model.OwnerScope, weekday time.Weekday, useCustomSchedule bool) (*model.AvailabilityWindow, error) {
	var (
		rows []model.AvailabilityWindow
		err  error
	)
	if scope.IsEmployee() && useCustomSchedule {
		rows, err = s.store.EmployeeWindows(ctx, scope.EmployeeID, weekday)
	} else {
		rows, err = s.store.ProviderWindows(ctx, scope.ProviderID, weekday)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range rows {
		if w.Active && w.Weekday == weekday && w.End > w.Start {
			win := w
			return &win, nil
		}
	}
	return nil, nil
}
