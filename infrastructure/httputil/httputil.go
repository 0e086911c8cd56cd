// Package httputil provides small HTTP response and request helpers shared
// by the middleware and HTTP API layers.
package httputil

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// envelope matches the {success, error} response shape used across the API.
type envelope struct {
	Success bool        `json:"success"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteErrorResponse writes a JSON error envelope with the given HTTP status.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error: &errorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// Unauthorized is a convenience wrapper around WriteErrorResponse for 401s.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorResponse(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// ClientIP extracts the caller's IP, preferring X-Forwarded-For and
// X-Real-IP (as set by a trusted reverse proxy) over RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
