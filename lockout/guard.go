// Package lockout locks an account for a while after repeated bad-credential
// logins. The Guard learns about login outcomes from the event bus.
package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/internal/utils"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 30 * time.Minute
)

type Guard struct {
	store       Store
	maxAttempts int
	lockFor     time.Duration
	publisher   events.Publisher
	log         zerolog.Logger
}

type GuardOption func(*Guard)

// WithMaxAttempts sets the number of consecutive failures that lock an
// account. Zero or less disables locking.
func WithMaxAttempts(n int) GuardOption {
	return func(g *Guard) {
		g.maxAttempts = n
	}
}

func WithLockDuration(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.lockFor = d
		}
	}
}

func WithPublisher(p events.Publisher) GuardOption {
	return func(g *Guard) {
		if p != nil {
			g.publisher = p
		}
	}
}

func WithLogger(log zerolog.Logger) GuardOption {
	return func(g *Guard) {
		g.log = log
	}
}

func NewGuard(store Store, options ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("[lockout NewGuard] store is required")
	}
	g := &Guard{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		lockFor:     DefaultLockDuration,
		publisher:   events.NopPublisher{},
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

func failKey(tenantID, username string) string {
	return utils.Key("lockout:fail", tenantID, username)
}

func lockKey(tenantID, username string) string {
	return utils.Key("lockout:lock", tenantID, username)
}

// Check returns errors.ErrAccountLocked while the account is locked. A store
// failure is logged and the login is allowed to proceed.
func (g *Guard) Check(ctx context.Context, tenantID, username string) error {
	if g.maxAttempts <= 0 {
		return nil
	}
	locked, err := g.store.Exists(ctx, lockKey(tenantID, username))
	if err != nil {
		g.log.Warn().Err(err).Str("tenant", tenantID).Str("username", username).Msg("lockout check failed")
		return nil
	}
	if locked {
		return errors.Wrapf(errors.ErrAccountLocked, "%s", username)
	}
	return nil
}

// Handle counts bad-credential failures and clears the counter on success.
// Register it with events.Bus.SubscribeInline so the count is current before
// the next attempt.
func (g *Guard) Handle(ctx context.Context, e events.Event) {
	if g.maxAttempts <= 0 || e.Username == "" {
		return
	}

	switch e.Type {
	case events.LoginSucceeded:
		if err := g.store.Delete(ctx, failKey(e.TenantID, e.Username)); err != nil {
			g.log.Warn().Err(err).Str("username", e.Username).Msg("lockout reset failed")
		}

	case events.LoginFailed:
		if e.Reason != events.ReasonBadCredentials {
			return
		}
		n, err := g.store.Incr(ctx, failKey(e.TenantID, e.Username), g.lockFor)
		if err != nil {
			g.log.Warn().Err(err).Str("username", e.Username).Msg("lockout count failed")
			return
		}
		if n < int64(g.maxAttempts) {
			return
		}
		g.lock(ctx, e)
	}
}

func (g *Guard) lock(ctx context.Context, e events.Event) {
	if err := g.store.SetFlag(ctx, lockKey(e.TenantID, e.Username), g.lockFor); err != nil {
		g.log.Error().Err(err).Str("username", e.Username).Msg("lockout lock failed")
		return
	}
	_ = g.store.Delete(ctx, failKey(e.TenantID, e.Username))

	g.log.Info().
		Str("tenant", e.TenantID).
		Str("username", e.Username).
		Dur("lock_for", g.lockFor).
		Msg("account locked after repeated login failures")

	g.publisher.Publish(ctx, events.Event{
		Type:      events.AccountLocked,
		TenantID:  e.TenantID,
		Username:  e.Username,
		UserID:    e.UserID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		LoginType: e.LoginType,
		Reason:    events.ReasonAccountLocked,
		Message:   fmt.Sprintf("locked for %s after %d failed attempts", g.lockFor, g.maxAttempts),
	})
}

// Unlock clears the lock and failure count for an account.
func (g *Guard) Unlock(ctx context.Context, tenantID, username string) error {
	if err := g.store.Delete(ctx, lockKey(tenantID, username), failKey(tenantID, username)); err != nil {
		return err
	}
	g.publisher.Publish(ctx, events.Event{
		Type:     events.AccountUnlocked,
		TenantID: tenantID,
		Username: username,
	})
	return nil
}
