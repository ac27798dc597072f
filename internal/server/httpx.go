package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/internal/common"
)

// NewRequestID mints the request identifier echoed in every envelope.
func NewRequestID() string { return uuid.New().String() }

// RequestID stamps every request with an ID, exposed via context and the
// X-Request-ID response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

// RequestIDFrom returns the request's stamped ID, minting one if the
// middleware did not run.
func RequestIDFrom(r *http.Request) string {
	if id := common.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return NewRequestID()
}

// WriteJSON writes v with the given status. The payload map should already
// carry "request_id".
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	errBody := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errBody["details"] = details
	}
	WriteJSON(w, status, map[string]any{
		"request_id": RequestIDFrom(r),
		"error":      errBody,
	})
}

// ReadJSON decodes the request body into v.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
