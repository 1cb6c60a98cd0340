package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo keeps users per tenant and scopes every call by the tenant in ctx.
type FakeUserRepo struct {
	users map[string]map[string]*users.User // tenant id -> username -> user
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]map[string]*users.User),
	}
}

func tenantOf(ctx context.Context) (string, error) {
	tenantID := tenants.ID(ctx)
	if tenantID == "" {
		return "", errors.ErrTenantMissing
	}
	return tenantID, nil
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	tenantID, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if user.TenantID != "" && user.TenantID != tenantID {
		return errors.ErrPermissionDenied
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.TenantID = tenantID
	if _, ok := ur.users[tenantID]; !ok {
		ur.users[tenantID] = make(map[string]*users.User)
	}
	if _, exists := ur.users[tenantID][user.Username]; exists {
		return errors.Wrapf(errors.ErrInvalidRequest, "username %q already exists", user.Username)
	}
	stored := *user
	ur.users[tenantID][user.Username] = &stored
	return nil
}

func (ur *FakeUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	tenantID, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}

	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[tenantID][username]
	if !ok {
		return nil, errors.ErrNotFound
	}
	found := *u
	return &found, nil
}

func (ur *FakeUserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	tenantID, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}

	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]*users.User, 0, len(ur.users[tenantID]))
	for _, u := range ur.users[tenantID] {
		found := *u
		list = append(list, &found)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Username < list[j].Username
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

func (ur *FakeUserRepo) UpdateLoginInfo(ctx context.Context, userID string, at time.Time, ip string) error {
	return ur.update(ctx, userID, func(u *users.User) {
		u.LastLoginAt = at
		u.LastLoginIP = ip
	})
}

func (ur *FakeUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return ur.update(ctx, userID, func(u *users.User) {
		u.PasswordHash = passwordHash
	})
}

func (ur *FakeUserRepo) UpdateStatus(ctx context.Context, userID string, status users.Status) error {
	return ur.update(ctx, userID, func(u *users.User) {
		u.Status = status
	})
}

func (ur *FakeUserRepo) update(ctx context.Context, userID string, apply func(*users.User)) error {
	tenantID, err := tenantOf(ctx)
	if err != nil {
		return err
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	for _, u := range ur.users[tenantID] {
		if u.ID == userID {
			apply(u)
			return nil
		}
	}
	return errors.ErrNotFound
}
