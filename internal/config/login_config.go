package config

import "time"

type LoginConfig interface {
	GetMaxLoginAttempts() int
	GetLockDuration() time.Duration
	GetRedisAddr() string
	GetRedisDB() int
	GetProfileCacheTTL() time.Duration
}

type Login struct {
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS, default=5"`
	LockDuration     time.Duration `env:"LOCK_DURATION, default=30m"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisDB          int           `env:"REDIS_DB, default=0"`
	ProfileCacheTTL  time.Duration `env:"PROFILE_CACHE_TTL, default=5m"`
}

var _ LoginConfig = Login{}

func (l Login) GetMaxLoginAttempts() int {
	return l.MaxLoginAttempts
}

func (l Login) GetLockDuration() time.Duration {
	return l.LockDuration
}

// GetRedisAddr returns the Redis address used for lockout counters and the
// profile cache. Empty selects the in-process stores.
func (l Login) GetRedisAddr() string {
	return l.RedisAddr
}

func (l Login) GetRedisDB() int {
	return l.RedisDB
}

func (l Login) GetProfileCacheTTL() time.Duration {
	return l.ProfileCacheTTL
}
