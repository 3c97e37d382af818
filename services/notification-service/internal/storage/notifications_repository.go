package storage

import (
	"context"
	_ "embed"

	"github.com/agendave/agendave/libs/db"
)

//go:embed schema.sql
var Schema string

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Notification is the delivery record kept for every consumed booking event that addressed
// someone.
type Notification struct {
	EventID       string
	EventType     string
	AppointmentID string
	ProviderID    string
	Party         string
	PartyID       string
	Channel       string
	Recipient     string
	Subject       string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.pool.Migrate(ctx, Schema)
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications
			(event_id, event_type, appointment_id, provider_id, party, party_id, channel, recipient, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.EventID, n.EventType, n.AppointmentID, n.ProviderID, n.Party, n.PartyID, n.Channel, n.Recipient, n.Subject, n.Status, n.Error)
	return err
}
