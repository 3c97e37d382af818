package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	EventReminderDue              = "booking.reminder.due.v1"
)

// AppointmentPayload is the JSON body of every booking event.
type AppointmentPayload struct {
	AppointmentID  string `json:"appointment_id"`
	ProviderID     string `json:"provider_id"`
	ClientID       string `json:"client_id"`
	ServiceID      string `json:"service_id"`
	EmployeeID     string `json:"employee_id,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Status         string `json:"status"`
	ActorRole      string `json:"actor_role,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PreviousDate   string `json:"previous_date,omitempty"`
	PreviousTime   string `json:"previous_time,omitempty"`
	StartsAt       string `json:"starts_at,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}
