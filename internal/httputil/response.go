// Package httputil holds the response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/seqsweep/internal/db"
	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// MaxBodySize caps request bodies read by DecodeJSON.
const MaxBodySize = 1 << 20

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Warnf("failed to encode json response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteHTML writes a rendered page.
func WriteHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		monitoring.Warnf("failed to write html response: %v", err)
	}
}

// StatusFor maps compiler and store errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sweep.ErrInvalidType), errors.Is(err, sweep.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, sweep.ErrInvalidState), errors.Is(err, sweep.ErrOwnership):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status StatusFor picks. Internal errors are
// logged and reported without detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		monitoring.Logf("internal error: %v", err)
		WriteJSONError(w, status, "internal error")
		return
	}
	WriteJSONError(w, status, err.Error())
}

// DecodeJSON reads at most MaxBodySize bytes of r into v.
func DecodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxBodySize {
		return fmt.Errorf("%w: request body exceeds %d bytes", sweep.ErrInvalidValue, MaxBodySize)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", sweep.ErrInvalidType, err)
	}
	return nil
}

// MethodNotAllowed writes a 405 listing the allowed methods.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}
