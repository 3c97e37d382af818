package model

import "time"

// OwnerScope names whose calendar is being queried: the whole provider when
// EmployeeID is empty, otherwise that employee of the provider.
type OwnerScope struct {
	ProviderID string
	EmployeeID string
}

func ProviderScope(providerID string) OwnerScope {
	return OwnerScope{ProviderID: providerID}
}

func EmployeeScope(providerID, employeeID string) OwnerScope {
	return OwnerScope{ProviderID: providerID, EmployeeID: employeeID}
}

func (s OwnerScope) IsEmployee() bool { return s.EmployeeID != "" }

// OwnerID is the id the availability rows are keyed by.
func (s OwnerScope) OwnerID() string {
	if s.IsEmployee() {
		return s.EmployeeID
	}
	return s.ProviderID
}

type AvailabilityWindow struct {
	OwnerID string
	Weekday time.Weekday
	Start   Clock
	End     Clock
	Active  bool
}

// Role is the side of the booking that made a change.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)
