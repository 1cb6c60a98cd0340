package token

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/jrsteele09/go-tenant-auth/users"
)

const shardCount = 32

// account holds the live sessions of one account in registration order and
// the refresh grants of sessions whose access token has expired.
type account struct {
	sessions []*Session
	dormant  []grant
}

func (a *account) indexOf(deviceID string) int {
	for i, s := range a.sessions {
		if s.DeviceID == deviceID {
			return i
		}
	}
	return -1
}

func (a *account) removeAt(i int) *Session {
	s := a.sessions[i]
	a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
	return s
}

func (a *account) dropGrants(deviceID string) {
	kept := a.dormant[:0]
	for _, g := range a.dormant {
		if g.deviceID != deviceID {
			kept = append(kept, g)
		}
	}
	a.dormant = kept
}

func (a *account) empty() bool {
	return len(a.sessions) == 0 && len(a.dormant) == 0
}

// expire moves sessions whose access token expired into the dormant grants
// and discards grants whose refresh token expired.
func (a *account) expire(now time.Time, skew time.Duration) []*Session {
	var expired []*Session
	live := a.sessions[:0]
	for _, s := range a.sessions {
		if now.After(s.ExpiresAt.Add(skew)) {
			expired = append(expired, s)
			a.dormant = append(a.dormant, s.grant())
			continue
		}
		live = append(live, s)
	}
	a.sessions = live

	kept := a.dormant[:0]
	for _, g := range a.dormant {
		if now.After(g.refreshExpiresAt.Add(skew)) {
			continue
		}
		kept = append(kept, g)
	}
	a.dormant = kept
	return expired
}

type shard struct {
	mu       sync.Mutex
	accounts map[accountKey]*account
}

// registry is the process-wide session table. Each account lives in one
// shard and every check-then-modify sequence runs under that shard's lock.
type registry struct {
	shards [shardCount]*shard
	skew   time.Duration
}

func newRegistry(skew time.Duration) *registry {
	r := &registry{skew: skew}
	for i := range r.shards {
		r.shards[i] = &shard{accounts: make(map[accountKey]*account)}
	}
	return r
}

func (r *registry) shardFor(k accountKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.username))
	return r.shards[h.Sum32()%shardCount]
}

// admitLocked inserts s for its device, evicting the oldest sessions when the
// account is at capacity and the device owns no session yet. maxSessions 0 is unlimited.
func (r *registry) admitLocked(acc *account, s *Session, maxSessions int) (evicted []*Session) {
	if i := acc.indexOf(s.DeviceID); i >= 0 {
		acc.removeAt(i)
		metrics.SessionsActive.Dec()
	} else if maxSessions > 0 {
		for len(acc.sessions) >= maxSessions {
			evicted = append(evicted, acc.removeAt(0))
			metrics.SessionsActive.Dec()
		}
	}
	acc.dropGrants(s.DeviceID)
	acc.sessions = append(acc.sessions, s)
	metrics.SessionsActive.Inc()
	return evicted
}

func (r *registry) admit(k accountKey, s *Session, maxSessions int, now time.Time) (evicted, expired []*Session) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		acc = &account{}
		sh.accounts[k] = acc
	}
	expired = acc.expire(now, r.skew)
	metrics.SessionsActive.Sub(float64(len(expired)))
	evicted = r.admitLocked(acc, s, maxSessions)
	return evicted, expired
}

func (r *registry) lookup(k accountKey, deviceID string) (Session, bool) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return Session{}, false
	}
	i := acc.indexOf(deviceID)
	if i < 0 {
		return Session{}, false
	}
	return *acc.sessions[i], true
}

// expireToken removes the device's session if it still belongs to tokenID,
// keeping its refresh grant.
func (r *registry) expireToken(k accountKey, deviceID, tokenID string) (Session, bool) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return Session{}, false
	}
	i := acc.indexOf(deviceID)
	if i < 0 || acc.sessions[i].TokenID != tokenID {
		return Session{}, false
	}
	s := acc.removeAt(i)
	acc.dormant = append(acc.dormant, s.grant())
	metrics.SessionsActive.Dec()
	return *s, true
}

// refreshGrant returns the principal bound to refreshID, from a live session
// or a dormant grant of the device.
func (r *registry) refreshGrant(k accountKey, deviceID, refreshID string, now time.Time) (users.Principal, bool) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return users.Principal{}, false
	}
	if i := acc.indexOf(deviceID); i >= 0 && acc.sessions[i].RefreshID == refreshID {
		return acc.sessions[i].principal.Clone(), true
	}
	for _, g := range acc.dormant {
		if g.deviceID == deviceID && g.refreshID == refreshID && !now.After(g.refreshExpiresAt.Add(r.skew)) {
			return g.principal.Clone(), true
		}
	}
	return users.Principal{}, false
}

// rotate replaces the session or grant identified by refreshID with s. It
// fails when refreshID was consumed or revoked since refreshGrant.
func (r *registry) rotate(k accountKey, refreshID string, s *Session, maxSessions int, now time.Time) (evicted, expired []*Session, ok bool) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, found := sh.accounts[k]
	if !found {
		return nil, nil, false
	}

	live := false
	if i := acc.indexOf(s.DeviceID); i >= 0 && acc.sessions[i].RefreshID == refreshID {
		live = true
	}
	dormant := false
	for _, g := range acc.dormant {
		if g.deviceID == s.DeviceID && g.refreshID == refreshID {
			dormant = true
			break
		}
	}
	if !live && !dormant {
		return nil, nil, false
	}

	expired = acc.expire(now, r.skew)
	metrics.SessionsActive.Sub(float64(len(expired)))
	evicted = r.admitLocked(acc, s, maxSessions)
	return evicted, expired, true
}

// remove deletes the device's session and refresh grants.
func (r *registry) remove(k accountKey, deviceID string) (Session, bool) {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return Session{}, false
	}
	acc.dropGrants(deviceID)

	var removed Session
	found := false
	if i := acc.indexOf(deviceID); i >= 0 {
		removed = *acc.removeAt(i)
		found = true
		metrics.SessionsActive.Dec()
	}
	if acc.empty() {
		delete(sh.accounts, k)
	}
	return removed, found
}

// removeAll deletes every session and refresh grant of the account.
func (r *registry) removeAll(k accountKey) []Session {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return nil
	}
	delete(sh.accounts, k)

	removed := make([]Session, 0, len(acc.sessions))
	for _, s := range acc.sessions {
		removed = append(removed, *s)
	}
	metrics.SessionsActive.Sub(float64(len(removed)))
	return removed
}

// list returns the account's unexpired sessions in registration order.
func (r *registry) list(k accountKey, now time.Time) []Session {
	sh := r.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accounts[k]
	if !ok {
		return nil
	}
	out := make([]Session, 0, len(acc.sessions))
	for _, s := range acc.sessions {
		if now.After(s.ExpiresAt.Add(r.skew)) {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// sweep expires sessions across every shard and drops accounts left empty.
func (r *registry) sweep(now time.Time) []Session {
	var expired []Session
	for _, sh := range r.shards {
		sh.mu.Lock()
		for k, acc := range sh.accounts {
			for _, s := range acc.expire(now, r.skew) {
				expired = append(expired, *s)
			}
			if acc.empty() {
				delete(sh.accounts, k)
			}
		}
		sh.mu.Unlock()
	}
	metrics.SessionsActive.Sub(float64(len(expired)))
	return expired
}
