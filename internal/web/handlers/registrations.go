package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// RegistrationsHandler handles participant endpoints.
type RegistrationsHandler struct {
	store *store.Store
	mail  mailer.Sender
	log   zerolog.Logger
}

func NewRegistrationsHandler(st *store.Store, sender mailer.Sender, log zerolog.Logger) *RegistrationsHandler {
	return &RegistrationsHandler{store: st, mail: sender, log: log}
}

// List handles GET /registrations.
func (h *RegistrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	regs, err := h.store.ListRegistrations(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("could not list registrations")
		respondError(w, http.StatusInternalServerError, "could not list registrations")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"registrations": regs})
}

// Create handles POST /registrations.
func (h *RegistrationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)
	if input.FirstName == "" || input.LastName == "" {
		respondError(w, http.StatusBadRequest, "first and last name are required")
		return
	}
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			respondError(w, http.StatusBadRequest, "invalid email address")
			return
		}
	}

	reg, err := h.store.CreateRegistration(r.Context(), input.FirstName, input.LastName, input.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("could not create registration")
		respondError(w, http.StatusInternalServerError, "could not create registration")
		return
	}
	respondJSON(w, http.StatusCreated, reg)
}

// Get handles GET /registrations/{id}.
func (h *RegistrationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	reg, err := h.store.GetRegistration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "registration not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load registration")
		return
	}
	respondJSON(w, http.StatusOK, reg)
}

// SendPhotos handles POST /registrations/{id}/send-photos, the manual email
// trigger for people whose automatic notification failed or was disabled.
func (h *RegistrationsHandler) SendPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	reg, err := h.store.GetRegistration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "registration not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load registration")
		return
	}
	if reg.Email == "" {
		respondError(w, http.StatusConflict, "registration has no email address")
		return
	}
	if reg.DriveLink == "" {
		respondError(w, http.StatusConflict, "no photos have been uploaded for this registration")
		return
	}

	if err := h.mail.SendPhotosEmail(r.Context(), reg.Email, reg.FirstName, reg.DriveLink); err != nil {
		h.log.Error().Err(err).Int64("registration_id", id).Msg("could not send photos email")
		respondError(w, http.StatusBadGateway, "could not send email")
		return
	}
	if err := h.store.MarkEmailSent(r.Context(), id); err != nil {
		h.log.Warn().Err(err).Int64("registration_id", id).Msg("could not mark email sent")
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
