package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/identity"
	"github.com/medibook/medibook/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeSchedulingError maps the typed error kinds to HTTP statuses. All of
// them are terminal, user-facing outcomes; slot_taken in particular is the
// expected loser side of a booking race and tells the caller to pick another
// slot, not to retry the same one.
func writeSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, identity.ErrProfileIncomplete):
		writeError(w, http.StatusConflict, "profile_incomplete", err.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrDepartmentNotFound),
		errors.Is(err, scheduling.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, scheduling.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot already booked, choose another slot")
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
