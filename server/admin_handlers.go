package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/store"
)

// ListUsersHandler lists users of the caller's tenant.
func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit, err := pagination(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		list, err := s.accounts.ListUsers(r.Context(), offset, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": list, "offset": offset, "limit": limit})
	}
}

func (s *Server) UnlockUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.accounts.Unlock(r.Context(), r.PathValue("username")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListLoginLogsHandler lists the caller's tenant login log, newest first.
func (s *Server) ListLoginLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.loginLogs == nil {
			writeJSONError(w, "not_implemented", "login log is not configured", http.StatusNotImplemented)
			return
		}
		offset, limit, err := pagination(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		entries, err := s.loginLogs.List(r.Context(), store.LoginLogFilter{
			Username: q.Get("username"),
			Status:   q.Get("status"),
			Offset:   offset,
			Limit:    limit,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "offset": offset, "limit": limit})
	}
}

// HealthHandler pings the configured dependency.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			if err := s.health.Ping(r.Context()); err != nil {
				s.log.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

const maxPageSize = 500

func pagination(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.Wrapf(errors.ErrInvalidRequest, "offset must be a non-negative integer")
		}
	}
	limit = 50
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 || limit > maxPageSize {
			return 0, 0, errors.Wrapf(errors.ErrInvalidRequest, "limit must be between 1 and %d", maxPageSize)
		}
	}
	return offset, limit, nil
}
