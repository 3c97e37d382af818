package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agendave/agendave/libs/kafkax"
	"github.com/agendave/agendave/services/notification-service/internal/contacts"
	"github.com/agendave/agendave/services/notification-service/internal/dispatch"
	"github.com/agendave/agendave/services/notification-service/internal/email"
	"github.com/agendave/agendave/services/notification-service/internal/sms"
	"github.com/agendave/agendave/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type ContactBook interface {
	Get(ctx context.Context, partyID string) (contacts.Contact, error)
}

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Service struct {
	contacts ContactBook
	email    email.Sender
	sms      sms.Sender
	records  Recorder
	logger   *slog.Logger
}

func NewService(book ContactBook, mail email.Sender, text sms.Sender, records Recorder, logger *slog.Logger) *Service {
	return &Service{contacts: book, email: mail, sms: text, records: records, logger: logger}
}

// Handle turns one booking event into at most one message. Malformed and silent events are
// acknowledged without a record; delivery failures are recorded, not retried.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	payload, err := dispatch.Decode(msg.Value)
	if err != nil {
		s.logger.Error("booking event dropped", "event_id", meta.EventID, "event_type", meta.EventType, "err", err)
		return nil
	}
	plan, err := dispatch.Plan(meta.EventType, payload)
	if errors.Is(err, dispatch.ErrIgnored) {
		return nil
	}
	if err != nil {
		return err
	}

	rec := storage.Notification{
		EventID:       meta.EventID,
		EventType:     meta.EventType,
		AppointmentID: payload.AppointmentID,
		ProviderID:    payload.ProviderID,
		Party:         string(plan.Party),
		PartyID:       plan.PartyID,
		Subject:       plan.Subject,
	}

	contact, err := s.contacts.Get(ctx, plan.PartyID)
	switch {
	case errors.Is(err, contacts.ErrNotFound):
		rec.Status = storage.StatusSkipped
		rec.Error = "no contact on file"
		return s.record(ctx, rec)
	case err != nil:
		return fmt.Errorf("load contact: %w", err)
	}

	rec.Channel = string(contact.Channel)
	rec.Recipient = contact.Address()
	if rec.Recipient == "" {
		rec.Status = storage.StatusSkipped
		rec.Error = "no address for channel " + rec.Channel
		return s.record(ctx, rec)
	}

	if err := s.send(ctx, contact, plan); err != nil {
		s.logger.Error("notification send failed", "event_id", meta.EventID, "channel", rec.Channel, "err", err)
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = storage.StatusSent
	}
	return s.record(ctx, rec)
}

func (s *Service) send(ctx context.Context, c contacts.Contact, plan dispatch.Message) error {
	switch c.Channel {
	case contacts.ChannelSMS:
		return s.sms.Send(ctx, c.Phone, plan.Subject+": "+plan.Body)
	case contacts.ChannelEmail, "":
		return s.email.Send(c.Email, plan.Subject, plan.Body)
	}
	return fmt.Errorf("unsupported channel %q", c.Channel)
}

func (s *Service) record(ctx context.Context, rec storage.Notification) error {
	if err := s.records.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	s.logger.Info("notification processed",
		"event_id", rec.EventID,
		"appointment_id", rec.AppointmentID,
		"party", rec.Party,
		"channel", rec.Channel,
		"status", rec.Status,
	)
	return nil
}
