// Package events carries authentication lifecycle notifications from the
// token and login layers to observers such as lockout counting, login
// auditing and cache invalidation.
package events

import (
	"context"
	"time"
)

type Type string

const (
	LoginSucceeded     Type = "login_succeeded"
	LoginFailed        Type = "login_failed"
	Logout             Type = "logout"
	SessionExpired     Type = "session_expired"
	SessionInvalidated Type = "session_invalidated"
	AccountLocked      Type = "account_locked"
	AccountUnlocked    Type = "account_unlocked"
	PasswordChanged    Type = "password_changed"
)

// Failure reasons attached to LoginFailed events.
const (
	ReasonBadCredentials   = "bad_credentials"
	ReasonAccountDisabled  = "account_disabled"
	ReasonAccountDeparted  = "account_departed"
	ReasonAccountLocked    = "account_locked"
	ReasonInvalidRequest   = "invalid_request"
	ReasonUnsupportedType  = "unsupported_login_type"
	ReasonUnknownTenant    = "unknown_tenant"
	ReasonTokenIssueFailed = "token_issue_failed"
	ReasonVerifierDown     = "verifier_unavailable"
	ReasonInternalError    = "internal_error"
)

// Session end reasons attached to SessionInvalidated and Logout events.
const (
	ReasonEvicted   = "evicted"
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
	ReasonExpired   = "expired"
)

// Event is a single authentication lifecycle notification.
type Event struct {
	Type       Type
	TenantID   string
	Username   string
	UserID     string
	DeviceID   string
	LoginType  string
	IP         string
	UserAgent  string
	Reason     string
	Message    string
	OccurredAt time.Time
}

// Handler observes events. Handlers must not assume they run on the request goroutine.
type Handler func(ctx context.Context, e Event)

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
