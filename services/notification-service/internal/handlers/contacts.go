package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agendave/agendave/libs/auth"
	"github.com/agendave/agendave/libs/httpx"
	"github.com/agendave/agendave/services/notification-service/internal/contacts"
	"github.com/go-playground/validator/v10"
)

type ContactStore interface {
	Get(ctx context.Context, partyID string) (contacts.Contact, error)
	Upsert(ctx context.Context, c contacts.Contact) error
}

type ContactsHandler struct {
	store    ContactStore
	logger   *slog.Logger
	validate *validator.Validate
}

func NewContactsHandler(store ContactStore, logger *slog.Logger) *ContactsHandler {
	return &ContactsHandler{store: store, logger: logger, validate: validator.New()}
}

func (h *ContactsHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	mux.Handle("/api/v1/contacts", authn(http.HandlerFunc(h.Contacts)))
}

type contactRequest struct {
	Email   string `json:"email" validate:"required_if=Channel email,omitempty,email,max=254"`
	Phone   string `json:"phone" validate:"required_if=Channel sms,omitempty,e164"`
	Channel string `json:"channel" validate:"required,oneof=email sms"`
}

type contactResponse struct {
	Party   string `json:"party"`
	PartyID string `json:"party_id"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Channel string `json:"channel"`
}

// Contacts reads or replaces the caller's contact details. With ?party=provider, provider
// staff manage the provider's shared contact instead of their own.
func (h *ContactsHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	party := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("party")))
	partyID := requester.UserID
	switch party {
	case "", "client":
		party = "client"
	case "provider":
		if !requester.IsProvider() {
			httpx.WriteError(w, http.StatusForbidden, "provider staff only")
			return
		}
		partyID = requester.ProviderID
	default:
		httpx.WriteError(w, http.StatusBadRequest, "party must be client or provider")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.store.Get(r.Context(), partyID)
		if errors.Is(err, contacts.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "contact not found")
			return
		}
		if err != nil {
			h.logger.Error("load contact failed", "party_id", partyID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toContactResponse(party, c))

	case http.MethodPut:
		var req contactRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid contact: "+err.Error())
			return
		}
		c := contacts.Contact{
			PartyID: partyID,
			Email:   strings.TrimSpace(req.Email),
			Phone:   strings.TrimSpace(req.Phone),
			Channel: contacts.Channel(req.Channel),
		}
		if err := h.store.Upsert(r.Context(), c); err != nil {
			h.logger.Error("save contact failed", "party_id", partyID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toContactResponse(party, c))

	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func toContactResponse(party string, c contacts.Contact) contactResponse {
	return contactResponse{
		Party:   party,
		PartyID: c.PartyID,
		Email:   c.Email,
		Phone:   c.Phone,
		Channel: string(c.Channel),
	}
}
