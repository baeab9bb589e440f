// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/netlabio/netlabd/internal/controller"
	xlog "github.com/netlabio/netlabd/internal/log"
)

// errorBody is the JSON error envelope of every non-2xx response.
type errorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// respondError writes the error envelope with the given status.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Message: message, Status: status}); err != nil {
		xlog.FromContext(r.Context()).Error().Err(err).Msg("failed to write error response")
	}
}

// respondControllerError maps typed controller errors onto HTTP statuses.
func respondControllerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, controller.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, controller.ErrProjectClosed):
		status = http.StatusForbidden
	case errors.Is(err, controller.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, controller.ErrInvalid):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		xlog.FromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	respondError(w, r, status, err.Error())
}

// respondJSON writes v with the given status.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		xlog.FromContext(r.Context()).Error().Err(err).Msg("failed to write response")
	}
}

// decodeJSON reads the request body into v, rejecting unknown garbage
// early with a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
