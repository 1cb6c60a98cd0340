package tenants

import (
	"fmt"
	"strings"
	"time"
)

type Status int

const (
	StatusDisabled Status = 0
	StatusEnabled  Status = 1
)

// Tenant is an isolated customer organisation. Every tenant-scoped row carries its ID.
type Tenant struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func New(id, code, name string) (*Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("[tenants New] tenant id is required")
	}
	return &Tenant{
		ID:        id,
		Code:      strings.TrimSpace(code),
		Name:      name,
		Status:    StatusEnabled,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (t *Tenant) Enabled() bool {
	return t != nil && t.Status == StatusEnabled
}

// Scope returns the request-scoped tenant context for this tenant.
func (t *Tenant) Scope() Context {
	return Context{TenantID: t.ID, TenantCode: t.Code}
}
