package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"splitledger/internal/auth"
	"splitledger/internal/core"
	"splitledger/internal/services"
	"splitledger/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps domain errors onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, storage.ErrDuplicateRow):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, services.ErrNotMember):
		respondError(w, http.StatusForbidden, "not a member of this group")
	case errors.Is(err, services.ErrSettleInFlight):
		respondError(w, http.StatusConflict, "settle-up already in progress")
	case errors.Is(err, core.ErrNothingToSettle):
		respondError(w, http.StatusConflict, "nothing to settle")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrMissingPayer),
		errors.Is(err, core.ErrEmptySplit),
		errors.Is(err, core.ErrBadDate),
		errors.Is(err, core.ErrUnknownSplitKind):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("Unhandled service error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
