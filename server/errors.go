package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
)

const contentTypeJSON = "application/json; charset=utf-8"

type errorMapping struct {
	target error
	status int
	code   string
}

// First match wins.
var errorMappings = []errorMapping{
	{errors.ErrAccountLocked, http.StatusForbidden, "account_locked"},
	{errors.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{errors.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{errors.ErrTokenInvalid, http.StatusUnauthorized, "invalid_token"},
	{errors.ErrAuthenticationFailed, http.StatusUnauthorized, "authentication_failed"},
	{errors.ErrUnsupportedLoginType, http.StatusBadRequest, "unsupported_login_type"},
	{errors.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{errors.ErrNotFound, http.StatusNotFound, "not_found"},
}

// statusFor maps err to an HTTP status and error code. Tenant missing and
// anything unrecognised are server faults.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	description := err.Error()

	switch {
	case status >= http.StatusInternalServerError:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		description = "internal error"
	case status == http.StatusUnauthorized:
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("unauthorized")
		// Credential failures do not say which check failed.
		if code == "authentication_failed" {
			description = "authentication failed"
		}
	}
	writeJSONError(w, code, description, status)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
