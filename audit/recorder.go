// Package audit writes the login log from authentication events.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one login log row.
type Entry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Username  string    `json:"username"`
	Event     string    `json:"event"`
	LoginType string    `json:"loginType,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	DeviceID  string    `json:"deviceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink persists entries in the tenant carried by ctx.
type Sink interface {
	Record(ctx context.Context, e *Entry) error
}

// RecordedTypes are the events that produce a login log row.
var RecordedTypes = []events.Type{
	events.LoginSucceeded,
	events.LoginFailed,
	events.Logout,
	events.AccountLocked,
	events.AccountUnlocked,
}

type Recorder struct {
	sink Sink
	log  zerolog.Logger
}

type RecorderOption func(*Recorder)

func WithLogger(log zerolog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = log
	}
}

func NewRecorder(sink Sink, options ...RecorderOption) (*Recorder, error) {
	if sink == nil {
		return nil, fmt.Errorf("[audit NewRecorder] sink is required")
	}
	r := &Recorder{sink: sink, log: zerolog.Nop()}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Handle records the event. Register it with events.Bus.Subscribe so the
// write happens off the request path. Events published before the tenant
// was resolved are skipped.
func (r *Recorder) Handle(ctx context.Context, e events.Event) {
	if _, ok := tenants.FromContext(ctx); !ok {
		r.log.Debug().Str("type", string(e.Type)).Str("username", e.Username).Msg("login log skipped, no tenant")
		return
	}

	status := StatusSuccess
	if e.Type == events.LoginFailed || e.Type == events.AccountLocked {
		status = StatusFailure
	}
	browser, os := ParseUserAgent(e.UserAgent)
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		TenantID:  e.TenantID,
		Username:  e.Username,
		Event:     string(e.Type),
		LoginType: e.LoginType,
		Status:    status,
		Message:   truncate(e.Message, 255),
		IP:        e.IP,
		Browser:   browser,
		OS:        os,
		DeviceID:  e.DeviceID,
		CreatedAt: occurred.UTC(),
	}
	if err := r.sink.Record(ctx, entry); err != nil {
		r.log.Error().Err(err).
			Str("type", string(e.Type)).
			Str("tenant", e.TenantID).
			Str("username", e.Username).
			Msg("failed to record login log")
	}
}

// ParseUserAgent returns the browser and OS names for the login log.
func ParseUserAgent(raw string) (browser, os string) {
	if strings.TrimSpace(raw) == "" {
		return "Unknown", "Unknown"
	}
	ua := useragent.Parse(raw)
	return orOther(ua.Name), orOther(ua.OS)
}

func orOther(s string) string {
	if s == "" {
		return "Other"
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
