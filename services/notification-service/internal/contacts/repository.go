package contacts

import (
	"context"
	"errors"
	"time"

	"github.com/agendave/agendave/libs/db"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var ErrNotFound = errors.New("contact not found")

// Contact is where a client or provider wants to be reached. PartyID is a user id for clients
// and a provider id for providers.
type Contact struct {
	PartyID   string
	Email     string
	Phone     string
	Channel   Channel
	UpdatedAt time.Time
}

// Address returns the destination for the preferred channel.
func (c Contact) Address() string {
	if c.Channel == ChannelSMS {
		return c.Phone
	}
	return c.Email
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, partyID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT party_id, email, phone, channel, updated_at
		FROM contacts
		WHERE party_id = $1
	`, partyID).Scan(&c.PartyID, &c.Email, &c.Phone, &c.Channel, &c.UpdatedAt)
	if db.IsNotFound(err) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) Upsert(ctx context.Context, c Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contacts (party_id, email, phone, channel, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (party_id) DO UPDATE
		SET email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    channel = EXCLUDED.channel,
		    updated_at = now()
	`, c.PartyID, c.Email, c.Phone, string(c.Channel))
	return err
}
