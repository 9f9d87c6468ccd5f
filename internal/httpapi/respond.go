// Package httpapi holds the JSON response helpers and middleware shared by
// the node and station HTTP servers.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pitchcam/internal/api"
	"pitchcam/internal/services"
)

const maxBodyBytes = 1 << 20

// WriteJSON replies with payload encoded as JSON.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError replies with {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, api.ErrorResponse{Error: message})
}

// WriteFailure replies with the status matching err's classification.
func WriteFailure(w http.ResponseWriter, err error) {
	WriteError(w, services.HTTPStatus(err), err.Error())
}

// DecodeBody reads a JSON body into dst. An empty body leaves dst at its
// zero value so bare POSTs from curl behave as operator commands.
func DecodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode request", "invalid JSON body", err)
	}
	return nil
}
