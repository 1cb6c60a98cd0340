package server

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/tenants"
)

const maxBodyBytes = 1 << 16

// LoginHandler authenticates with the strategy named by loginType.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var attempt auth.LoginAttempt
		if err := decodeBody(r, &attempt); err != nil {
			s.writeError(w, r, err)
			return
		}
		if attempt.TenantID == "" {
			attempt.TenantID = tenants.ID(r.Context())
		}
		attempt.IP = s.clientIP(r)
		attempt.UserAgent = r.UserAgent()
		attempt.DeviceID = r.Header.Get(HeaderDeviceID)

		resp, err := s.dispatcher.Login(r.Context(), attempt)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshHandler rotates a token pair. The refresh token is read from the
// Refresh-Token header, falling back to the JSON body.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderRefreshToken))
		if raw == "" {
			var req refreshRequest
			if err := decodeBody(r, &req); err != nil {
				s.writeError(w, r, err)
				return
			}
			raw = req.RefreshToken
		}

		resp, err := s.dispatcher.Refresh(r.Context(), raw, r.Header.Get(HeaderDeviceID))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		ended := s.dispatcher.Logout(r.Context(), p, r.Header.Get(HeaderDeviceID))
		writeJSON(w, http.StatusOK, map[string]any{"loggedOut": ended})
	}
}

func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		n := s.dispatcher.LogoutAll(r.Context(), p)
		writeJSON(w, http.StatusOK, map[string]any{"sessionsEnded": n})
	}
}

// InfoHandler returns the caller's profile.
func (s *Server) InfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		profile, err := s.accounts.Profile(r.Context(), p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// SessionsHandler lists the caller's signed-in devices.
func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": s.tokens.Sessions(p.TenantID, p.Username),
		})
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePasswordHandler ends every session of the caller on success.
func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		p, _ := PrincipalFrom(r.Context())
		if err := s.accounts.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Wrapf(errors.ErrInvalidRequest, "empty request body")
		}
		return errors.Wrapf(errors.ErrInvalidRequest, "malformed request body: %v", err)
	}
	return nil
}

// clientIP returns the peer address, or the nearest untrusted
// X-Forwarded-For hop when the peer is a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !s.trustedProxy(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !s.trustedProxy(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (s *Server) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
