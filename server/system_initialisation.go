package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/internal/errors"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/rs/zerolog"
)

// SettingInitialised marks a completed bootstrap in the settings table.
const SettingInitialised = "system.initialised"

// Settings is the global key/value store used to remember bootstrap state.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// InitialiseSystem creates the system tenant and its administrator on first start.
// Tenant directory writes run under the system scope; the administrator is
// created inside the system tenant.
func InitialiseSystem(ctx context.Context, cfg config.EnvConfig, tenantRepo tenants.Repo, userRepo users.Repo, settings Settings, log zerolog.Logger) error {
	sysCtx := tenants.WithSystemScope(ctx, "system bootstrap")

	if _, err := settings.Get(sysCtx, SettingInitialised); err == nil {
		log.Debug().Msg("system already initialised")
		return nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("[server InitialiseSystem] failed to read bootstrap marker: %w", err)
	}

	systemTenant, err := initialiseSystemTenant(sysCtx, cfg, tenantRepo)
	if err != nil {
		return fmt.Errorf("[server InitialiseSystem] failed to bootstrap system tenant: %w", err)
	}

	tenantCtx := tenants.WithTenant(ctx, systemTenant.Scope())
	generatedPassword, err := createSuperAdmin(tenantCtx, cfg, userRepo)
	if err != nil {
		return fmt.Errorf("[server InitialiseSystem] failed to bootstrap super admin: %w", err)
	}

	if err := settings.Set(sysCtx, SettingInitialised, "true"); err != nil {
		return fmt.Errorf("[server InitialiseSystem] failed to write bootstrap marker: %w", err)
	}

	event := log.Info().
		Str("tenant", systemTenant.ID).
		Str("tenant_code", systemTenant.Code).
		Str("admin", cfg.GetSystemAdminUser())
	if generatedPassword != "" {
		// Printed once; the administrator should change it after the first login.
		event = event.Str("generated_password", generatedPassword)
	}
	event.Msg("system initialised")
	return nil
}

func initialiseSystemTenant(ctx context.Context, cfg config.EnvConfig, repo tenants.Repo) (*tenants.Tenant, error) {
	existing, err := repo.Get(ctx, cfg.GetSystemTenantID())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.ErrTenantNotFound) {
		return nil, err
	}

	systemTenant, err := tenants.New(cfg.GetSystemTenantID(), cfg.GetSystemTenantCode(), cfg.GetAppName())
	if err != nil {
		return nil, fmt.Errorf("[server initialiseSystemTenant] failed to create system tenant object: %w", err)
	}
	if err := repo.Upsert(ctx, systemTenant); err != nil {
		return nil, fmt.Errorf("[server initialiseSystemTenant] failed to create system tenant: %w", err)
	}
	return systemTenant, nil
}

func createSuperAdmin(ctx context.Context, cfg config.EnvConfig, repo users.Repo) (generatedPassword string, err error) {
	if _, err := repo.GetByUsername(ctx, cfg.GetSystemAdminUser()); err == nil {
		return "", nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}

	password := cfg.GetSystemAdminPassword()
	if password == "" {
		if password, err = generatePassword(); err != nil {
			return "", fmt.Errorf("[server createSuperAdmin] failed to generate password: %w", err)
		}
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server createSuperAdmin] failed to hash password: %w", err)
	}

	admin := &users.User{
		Username:     cfg.GetSystemAdminUser(),
		PasswordHash: passwordHash,
		Nickname:     "System Administrator",
		Status:       users.StatusEnabled,
		Roles:        []string{string(users.RoleSuperAdmin)},
		Permissions:  []string{users.PermissionAll},
	}
	if err := repo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("[server createSuperAdmin] failed to create super admin: %w", err)
	}
	return generatedPassword, nil
}

// generatePassword returns a random password that passes users.ValidatePasswordStrength.
func generatePassword() (string, error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", err
	}
	return "Aa1" + base64.RawURLEncoding.EncodeToString(passwordBytes), nil
}
