package audit_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/jrsteele09/go-tenant-auth/audit"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (s *memorySink) Record(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memorySink) all() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Entry(nil), s.entries...)
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		ua      string
		browser string
		os      string
	}{
		{"", "Unknown", "Unknown"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "Chrome", "Windows"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91", "Edge", "Windows"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", "Safari", "macOS"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", "Safari", "iOS"},
		{"Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", "Chrome", "Android"},
		{"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/23.0 Chrome/115.0.0.0 Mobile Safari/537.36", "Samsung Browser", "Android"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", "Firefox", "Linux"},
	}
	for _, tt := range tests {
		browser, os := audit.ParseUserAgent(tt.ua)
		require.Equal(t, tt.browser, browser, tt.ua)
		require.Equal(t, tt.os, os, tt.ua)
	}

	browser, os := audit.ParseUserAgent("curl/8.4.0")
	require.NotEmpty(t, browser)
	require.Equal(t, "Other", os)
}

func TestRecorderTruncatesMessageOnRuneBoundary(t *testing.T) {
	sink := &memorySink{}
	r, err := audit.NewRecorder(sink)
	require.NoError(t, err)

	ctx := tenants.WithTenant(context.Background(), tenants.Context{TenantID: "t1"})
	r.Handle(ctx, events.Event{
		Type:     events.LoginFailed,
		TenantID: "t1",
		Username: "用户",
		Message:  "x" + strings.Repeat("用", 100),
	})

	entries := sink.all()
	require.Len(t, entries, 1)
	msg := entries[0].Message
	require.True(t, utf8.ValidString(msg))
	require.LessOrEqual(t, len(msg), 255)
	require.Equal(t, "x"+strings.Repeat("用", 84), msg)
}

func TestRecorderWritesEntries(t *testing.T) {
	sink := &memorySink{}
	r, err := audit.NewRecorder(sink)
	require.NoError(t, err)

	ctx := tenants.WithTenant(context.Background(), tenants.Context{TenantID: "t1"})
	r.Handle(ctx, events.Event{
		Type:      events.LoginFailed,
		TenantID:  "t1",
		Username:  "alice",
		LoginType: "PASSWORD",
		IP:        "10.0.0.1",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		Reason:    events.ReasonBadCredentials,
		Message:   "authentication failed",
		DeviceID:  "laptop",
	})
	r.Handle(ctx, events.Event{Type: events.LoginSucceeded, TenantID: "t1", Username: "alice"})

	entries := sink.all()
	require.Len(t, entries, 2)
	require.Equal(t, audit.StatusFailure, entries[0].Status)
	require.Equal(t, "Firefox", entries[0].Browser)
	require.Equal(t, "Linux", entries[0].OS)
	require.Equal(t, "laptop", entries[0].DeviceID)
	require.NotEmpty(t, entries[0].ID)
	require.Equal(t, audit.StatusSuccess, entries[1].Status)
}

func TestRecorderSkipsEventsWithoutTenant(t *testing.T) {
	sink := &memorySink{}
	r, err := audit.NewRecorder(sink)
	require.NoError(t, err)

	r.Handle(context.Background(), events.Event{Type: events.LoginFailed, TenantID: "forged", Username: "alice"})
	require.Empty(t, sink.all())
}

func TestRecorderOnBus(t *testing.T) {
	sink := &memorySink{}
	r, err := audit.NewRecorder(sink)
	require.NoError(t, err)

	bus := events.NewBus(events.WithWorkers(2))
	bus.Subscribe(r.Handle, audit.RecordedTypes...)
	bus.Start(context.Background())

	ctx := tenants.WithTenant(context.Background(), tenants.Context{TenantID: "t1"})
	bus.Publish(ctx, events.Event{Type: events.LoginSucceeded, TenantID: "t1", Username: "alice"})
	bus.Publish(ctx, events.Event{Type: events.SessionExpired, TenantID: "t1", Username: "alice"})
	bus.Close()

	entries := sink.all()
	require.Len(t, entries, 1)
	require.Equal(t, string(events.LoginSucceeded), entries[0].Event)
}

func TestNewRecorderRequiresSink(t *testing.T) {
	_, err := audit.NewRecorder(nil)
	require.Error(t, err)
}
