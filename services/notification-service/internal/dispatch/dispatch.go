// Package dispatch decides who hears about a booking event and what they are told.
package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	EventReminderDue              = "booking.reminder.due.v1"
)

// Topics lists every event type the notification service consumes.
var Topics = []string{
	EventAppointmentCreated,
	EventAppointmentStatusChanged,
	EventAppointmentRescheduled,
	EventReminderDue,
}

var (
	// ErrIgnored marks events that carry nothing to tell anyone.
	ErrIgnored        = errors.New("event not notifiable")
	ErrInvalidPayload = errors.New("invalid event payload")
)

type Party string

const (
	PartyClient   Party = "client"
	PartyProvider Party = "provider"
)

func (p Party) Other() Party {
	if p == PartyProvider {
		return PartyClient
	}
	return PartyProvider
}

// Payload mirrors the JSON body booking-service writes for appointment events.
type Payload struct {
	AppointmentID  string `json:"appointment_id"`
	ProviderID     string `json:"provider_id"`
	ClientID       string `json:"client_id"`
	ServiceID      string `json:"service_id"`
	EmployeeID     string `json:"employee_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Status         string `json:"status"`
	ActorRole      string `json:"actor_role"`
	PreviousStatus string `json:"previous_status"`
	PreviousDate   string `json:"previous_date"`
	PreviousTime   string `json:"previous_time"`
	StartsAt       string `json:"starts_at"`
	OccurredAt     string `json:"occurred_at"`
}

func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.AppointmentID == "" || p.ProviderID == "" || p.ClientID == "" {
		return Payload{}, fmt.Errorf("%w: missing appointment, provider or client id", ErrInvalidPayload)
	}
	return p, nil
}

// Message is one notification addressed to a party.
type Message struct {
	Party   Party
	PartyID string
	Subject string
	Body    string
}

// Plan picks the recipient and renders the message for an event. New bookings go to the
// provider, confirmations and reminders to the client, and cancellations and reschedules to
// whoever did not make the change.
func Plan(eventType string, p Payload) (Message, error) {
	when := fmt.Sprintf("%s at %s", p.Date, p.Time)
	switch eventType {
	case EventAppointmentCreated:
		return addressed(p, PartyProvider,
			"New booking request",
			fmt.Sprintf("A client requested appointment %s on %s. Please confirm or decline it.", p.AppointmentID, when)), nil

	case EventAppointmentStatusChanged:
		switch p.Status {
		case "confirmed":
			return addressed(p, PartyClient,
				"Appointment confirmed",
				fmt.Sprintf("Your appointment on %s is confirmed.", when)), nil
		case "cancelled":
			return addressed(p, actor(p).Other(),
				"Appointment cancelled",
				fmt.Sprintf("The appointment on %s was cancelled.", when)), nil
		}
		return Message{}, ErrIgnored

	case EventAppointmentRescheduled:
		body := fmt.Sprintf("The appointment was moved to %s.", when)
		if p.PreviousDate != "" {
			body = fmt.Sprintf("The appointment on %s at %s was moved to %s.", p.PreviousDate, p.PreviousTime, when)
		}
		return addressed(p, actor(p).Other(), "Appointment rescheduled", body), nil

	case EventReminderDue:
		return addressed(p, PartyClient,
			"Appointment reminder",
			fmt.Sprintf("Reminder: you have an appointment on %s.", when)), nil
	}
	return Message{}, ErrIgnored
}

// actor defaults to the provider so that unattributed changes reach the client.
func actor(p Payload) Party {
	if strings.EqualFold(p.ActorRole, string(PartyClient)) {
		return PartyClient
	}
	return PartyProvider
}

func addressed(p Payload, to Party, subject, body string) Message {
	id := p.ClientID
	if to == PartyProvider {
		id = p.ProviderID
	}
	return Message{Party: to, PartyID: id, Subject: subject, Body: body}
}
