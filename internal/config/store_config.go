package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type StoreConfig interface {
	GetDatabaseDriver() string
	GetDatabaseDSN() string
}

type Store struct {
	Driver string `env:"DB_DRIVER, default=sqlite"`
	DSN    string `env:"DB_DSN, default=tenant-auth.db"`
}

var _ StoreConfig = Store{}

func (s Store) GetDatabaseDriver() string {
	return s.Driver
}

func (s Store) GetDatabaseDSN() string {
	return s.DSN
}
