// Package server exposes the login, session and account operations over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/go-tenant-auth/audit"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/store"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/rs/zerolog"
)

// LoginLogLister reads the login log of the tenant carried by ctx.
type LoginLogLister interface {
	List(ctx context.Context, f store.LoginLogFilter) ([]audit.Entry, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	log        zerolog.Logger
	dispatcher *auth.Dispatcher
	accounts   *auth.AccountService
	tokens     *token.Manager
	loginLogs  LoginLogLister
	health     HealthChecker
	proxies    []string
	trusted    []netip.Prefix
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithLoginLogs(l LoginLogLister) Option {
	return func(s *Server) {
		s.loginLogs = l
	}
}

func WithHealthCheck(h HealthChecker) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithTrustedProxies lists the addresses or CIDR ranges of reverse proxies
// whose X-Forwarded-For header is believed.
func WithTrustedProxies(proxies ...string) Option {
	return func(s *Server) {
		s.proxies = append(s.proxies, proxies...)
	}
}

func New(dispatcher *auth.Dispatcher, accounts *auth.AccountService, tokens *token.Manager, options ...Option) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("[server New] dispatcher is required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("[server New] account service is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("[server New] token manager is required")
	}

	s := &Server{
		mux:        http.NewServeMux(),
		log:        zerolog.Nop(),
		dispatcher: dispatcher,
		accounts:   accounts,
		tokens:     tokens,
	}
	for _, option := range options {
		option(s)
	}
	for _, p := range s.proxies {
		prefix, err := parsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("[server New] invalid trusted proxy %q: %w", p, err)
		}
		s.trusted = append(s.trusted, prefix)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.log.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
	}
}

func colourMethod(method string) string {
	padded := fmt.Sprintf(" %-7s", method)
	if colour, ok := methodColors[method]; ok {
		return colour + padded + ResetColor
	}
	return Gray + padded + ResetColor
}
