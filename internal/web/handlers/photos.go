package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/store"
)

// PhotosHandler handles manual photo corrections.
type PhotosHandler struct {
	store *store.Store
	log   zerolog.Logger
}

func NewPhotosHandler(st *store.Store, log zerolog.Logger) *PhotosHandler {
	return &PhotosHandler{store: st, log: log}
}

// Assign handles POST /photos/{id}/assign, attributing an unmatched photo to
// a registration by hand.
func (h *PhotosHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var input struct {
		RegistrationID int64 `json:"registration_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RegistrationID <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if _, err := h.store.GetRegistration(r.Context(), input.RegistrationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "registration not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not load registration")
		return
	}

	err := h.store.AssignRegistration(r.Context(), id, input.RegistrationID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "photo not found")
	case errors.Is(err, store.ErrAlreadyAssigned):
		respondError(w, http.StatusConflict, "photo already assigned")
	case err != nil:
		h.log.Error().Err(err).Int64("photo_id", id).Msg("could not assign photo")
		respondError(w, http.StatusInternalServerError, "could not assign photo")
	default:
		photo, gerr := h.store.GetPhoto(r.Context(), id)
		if gerr != nil {
			respondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
			return
		}
		respondJSON(w, http.StatusOK, photo)
	}
}
