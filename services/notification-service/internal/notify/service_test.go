package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/agendave/agendave/libs/kafkax"
	"github.com/agendave/agendave/services/notification-service/internal/contacts"
	"github.com/agendave/agendave/services/notification-service/internal/dispatch"
	"github.com/agendave/agendave/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type fakeBook map[string]contacts.Contact

func (b fakeBook) Get(_ context.Context, id string) (contacts.Contact, error) {
	c, ok := b[id]
	if !ok {
		return contacts.Contact{}, contacts.ErrNotFound
	}
	return c, nil
}

type sentMail struct{ to, subject, body string }

type fakeMail struct {
	sent []sentMail
	err  error
}

func (m *fakeMail) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMail) ProviderID() string { return "fake-mail" }

type fakeSMS struct{ to []string }

func (s *fakeSMS) Send(_ context.Context, to, _ string) error {
	s.to = append(s.to, to)
	return nil
}

func (s *fakeSMS) ProviderID() string { return "fake-sms" }

type fakeRecorder struct{ rows []storage.Notification }

func (r *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	r.rows = append(r.rows, n)
	return nil
}

func message(eventType, body string) kafka.Message {
	meta := kafkax.EventMeta{EventID: "evt-1", EventType: eventType}
	return kafka.Message{Topic: eventType, Headers: meta.Headers(), Value: []byte(body)}
}

const created = `{"appointment_id":"a1","provider_id":"p1","client_id":"c1","date":"2026-03-02","time":"10:00","status":"pending","actor_role":"client"}`

func newService(book fakeBook) (*Service, *fakeMail, *fakeSMS, *fakeRecorder) {
	mail := &fakeMail{}
	text := &fakeSMS{}
	rec := &fakeRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(book, mail, text, rec, logger), mail, text, rec
}

func TestHandleEmailsProviderOnCreate(t *testing.T) {
	svc, mail, _, rec := newService(fakeBook{
		"p1": {PartyID: "p1", Email: "salon@example.com", Channel: contacts.ChannelEmail},
	})
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentCreated, created)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(mail.sent) != 1 || mail.sent[0].to != "salon@example.com" {
		t.Fatalf("unexpected mail %+v", mail.sent)
	}
	if len(rec.rows) != 1 || rec.rows[0].Status != storage.StatusSent || rec.rows[0].Party != "provider" || rec.rows[0].EventID != "evt-1" {
		t.Fatalf("unexpected record %+v", rec.rows)
	}
}

func TestHandleTextsClientOnConfirm(t *testing.T) {
	svc, mail, text, rec := newService(fakeBook{
		"c1": {PartyID: "c1", Phone: "+15550001", Channel: contacts.ChannelSMS},
	})
	body := `{"appointment_id":"a1","provider_id":"p1","client_id":"c1","date":"2026-03-02","time":"10:00","status":"confirmed","actor_role":"provider"}`
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentStatusChanged, body)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(text.to) != 1 || text.to[0] != "+15550001" || len(mail.sent) != 0 {
		t.Fatalf("expected one sms, got sms=%v mail=%v", text.to, mail.sent)
	}
	if rec.rows[0].Channel != "sms" || rec.rows[0].Recipient != "+15550001" {
		t.Fatalf("unexpected record %+v", rec.rows[0])
	}
}

func TestHandleSkipsUnknownContact(t *testing.T) {
	svc, mail, _, rec := newService(fakeBook{})
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentCreated, created)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(mail.sent) != 0 || len(rec.rows) != 1 || rec.rows[0].Status != storage.StatusSkipped {
		t.Fatalf("expected skipped record, got %+v", rec.rows)
	}
}

func TestHandleRecordsSendFailure(t *testing.T) {
	svc, mail, _, rec := newService(fakeBook{
		"p1": {PartyID: "p1", Email: "salon@example.com", Channel: contacts.ChannelEmail},
	})
	mail.err = errors.New("smtp down")
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentCreated, created)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.rows[0].Status != storage.StatusFailed || rec.rows[0].Error != "smtp down" {
		t.Fatalf("expected failed record, got %+v", rec.rows[0])
	}
}

func TestHandleDropsMalformedAndSilentEvents(t *testing.T) {
	svc, mail, _, rec := newService(fakeBook{})
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentCreated, `{"appointment_id":`)); err != nil {
		t.Fatalf("malformed event should be acknowledged, got %v", err)
	}
	done := `{"appointment_id":"a1","provider_id":"p1","client_id":"c1","status":"done"}`
	if err := svc.Handle(context.Background(), message(dispatch.EventAppointmentStatusChanged, done)); err != nil {
		t.Fatalf("silent event should be acknowledged, got %v", err)
	}
	if len(mail.sent) != 0 || len(rec.rows) != 0 {
		t.Fatalf("expected nothing sent or recorded, got %v %v", mail.sent, rec.rows)
	}
}
