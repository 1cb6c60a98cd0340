package config

import (
	"fmt"
	"strings"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogPretty() bool
	GetSystemTenantID() string
	GetSystemTenantCode() string
	GetSystemAdminUser() string
	GetSystemAdminPassword() string
	GetTrustedProxies() []string
}

type EnvVars struct {
	Port                string   `env:"PORT, default=8080"`
	AppName             string   `env:"APP_NAME, default=Tenant Auth"`
	Environment         string   `env:"ENV, default=DEV"`
	LogLevel            string   `env:"LOG_LEVEL, default=info"`
	LogPretty           bool     `env:"LOG_PRETTY, default=false"`
	SystemTenantID      string   `env:"SYSTEM_TENANT_ID, default=system"`
	SystemTenantCode    string   `env:"SYSTEM_TENANT_CODE, default=000000"`
	SystemAdminUser     string   `env:"SYSTEM_ADMIN_USER, default=admin"`
	SystemAdminPassword string   `env:"SYSTEM_ADMIN_PASSWORD"`
	TrustedProxies      []string `env:"TRUSTED_PROXIES"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return e.Environment
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetLogPretty() bool {
	return e.LogPretty
}

func (e EnvVars) GetSystemTenantID() string {
	return e.SystemTenantID
}

func (e EnvVars) GetSystemTenantCode() string {
	return e.SystemTenantCode
}

func (e EnvVars) GetSystemAdminUser() string {
	return e.SystemAdminUser
}

// GetSystemAdminPassword returns the bootstrap administrator password.
// Empty means one is generated on first start.
func (e EnvVars) GetSystemAdminPassword() string {
	return e.SystemAdminPassword
}

// GetTrustedProxies returns the addresses or CIDR ranges whose
// X-Forwarded-For header is honoured. Empty means the header is ignored.
func (e EnvVars) GetTrustedProxies() []string {
	return e.TrustedProxies
}
