// Package api implements the HTTP boundary of the statistics store.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// Response is the uniform envelope for every endpoint: success carries
// data, failure carries an error message, never both.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{OK: true, Data: data})
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{OK: false, Error: message})
}
