package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// maxBodyBytes caps request bodies; parameter payloads are tiny.
const maxBodyBytes = 64 << 10

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidParameters):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoDataYet), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStopTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeInto decodes the request body over dst. An empty body leaves dst
// untouched.
func decodeInto(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
