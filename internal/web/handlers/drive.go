package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/drive"
)

// DriveHandler handles the cloud storage connection endpoints.
type DriveHandler struct {
	manager *drive.Manager
	log     zerolog.Logger
}

func NewDriveHandler(m *drive.Manager, log zerolog.Logger) *DriveHandler {
	return &DriveHandler{manager: m, log: log}
}

// Status handles GET /drive/status.
func (h *DriveHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("could not read drive status")
		respondError(w, http.StatusInternalServerError, "could not read drive status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// AuthURL handles GET /drive/auth-url, returning the provider consent URL
// the frontend redirects the user to.
func (h *DriveHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	respondJSON(w, http.StatusOK, map[string]string{
		"url":   h.manager.AuthURL(state),
		"state": state,
	})
}

// Connect handles POST /drive/connect with the authorization code from the
// OAuth callback.
func (h *DriveHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Code == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.manager.Exchange(r.Context(), input.Code); err != nil {
		h.log.Error().Err(err).Msg("drive authorization failed")
		respondError(w, http.StatusBadGateway, "drive authorization failed")
		return
	}
	status, err := h.manager.Status(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]bool{"connected": true})
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Disconnect handles DELETE /drive/connection.
func (h *DriveHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Disconnect(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("could not disconnect drive account")
		respondError(w, http.StatusInternalServerError, "could not disconnect drive account")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"connected": false})
}
