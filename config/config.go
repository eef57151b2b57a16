// Package config reads the YAML settings of a migration run and opens
// the driver and lock they describe.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/root-talis/ikou"
	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/driver/mysql"
	"github.com/root-talis/ikou/driver/postgres"
	"github.com/root-talis/ikou/driver/sqlite"
	"github.com/root-talis/ikou/lock"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LockBackendDatabase = "database"
	LockBackendRedis    = "redis"

	DefaultDir = "migrations"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Dir    string `yaml:"dir"`

	LockKey     string        `yaml:"lock_key"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	UnitTimeout time.Duration `yaml:"unit_timeout"`

	Lock LockConfig `yaml:"lock"`
}

type LockConfig struct {
	// Backend is "database" (the driver's own lock) or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

func Defaults() Config {
	return Config{
		Table:   driver.DefaultTableName,
		Dir:     DefaultDir,
		LockKey: ikou.DefaultLockKey,
		Lock: LockConfig{
			Backend: LockBackendDatabase,
			Redis: RedisConfig{
				Prefix: lock.DefaultRedisPrefix,
				TTL:    lock.DefaultRedisTTL,
			},
		},
	}
}

// Load reads the file at path on top of Defaults. Unknown keys are
// rejected. The result is not validated; callers may still override
// fields before calling Validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	case "":
		return fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}

	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrInvalidConfig)
	}
	if c.LockKey == "" {
		return fmt.Errorf("%w: lock_key is required", ErrInvalidConfig)
	}
	if c.LockTimeout < 0 || c.UnitTimeout < 0 {
		return fmt.Errorf("%w: timeouts cannot be negative", ErrInvalidConfig)
	}

	switch c.Lock.Backend {
	case LockBackendDatabase, "":
	case LockBackendRedis:
		if c.Lock.Redis.Addr == "" {
			return fmt.Errorf("%w: lock.redis.addr is required for the redis lock", ErrInvalidConfig)
		}
		if c.Lock.Redis.TTL < 0 {
			return fmt.Errorf("%w: lock.redis.ttl cannot be negative", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported lock backend %q", ErrInvalidConfig, c.Lock.Backend)
	}

	return nil
}

// LagerData describes the configuration for logs, leaving out secrets.
func (c Config) LagerData() lager.Data {
	return lager.Data{
		"driver":       c.Driver,
		"table":        c.Table,
		"dir":          c.Dir,
		"lock_backend": c.Lock.Backend,
	}
}

// Backend is an opened driver together with the lock a run should use.
type Backend struct {
	Driver driver.Driver
	Locker lock.Locker

	redis *redis.Client
}

func (b *Backend) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	errs = append(errs, b.Driver.Close())

	return errors.Join(errs...)
}

// Open validates c and connects to what it describes.
func (c Config) Open(logger lager.Logger, clk clock.Clock) (*Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	drv, err := c.openDriver(logger, clk)
	if err != nil {
		return nil, err
	}

	backend := &Backend{Driver: drv, Locker: drv}

	if c.Lock.Backend == LockBackendRedis {
		backend.redis = redis.NewClient(&redis.Options{
			Addr:     c.Lock.Redis.Addr,
			Password: c.Lock.Redis.Password,
			DB:       c.Lock.Redis.DB,
		})
		backend.Locker = lock.NewRedis(backend.redis, lock.RedisConfig{
			Prefix: c.Lock.Redis.Prefix,
			TTL:    c.Lock.Redis.TTL,
			Wait:   c.LockTimeout,
		}, clk, logger)
	}

	return backend, nil
}

func (c Config) openDriver(logger lager.Logger, clk clock.Clock) (driver.Driver, error) {
	switch c.Driver {
	case DriverMySQL:
		return mysql.Open(c.DSN, mysql.DriverConfig{
			MigrationsTableName: c.Table,
			LockWait:            c.LockTimeout,
			Logger:              logger,
		})
	case DriverPostgres:
		return postgres.Open(c.DSN, postgres.Config{
			MigrationsTableName: c.Table,
			LockWait:            c.LockTimeout,
			Clock:               clk,
			Logger:              logger,
		})
	case DriverSQLite:
		return sqlite.Open(c.DSN, sqlite.Config{
			MigrationsTableName: c.Table,
			LockWait:            c.LockTimeout,
			Clock:               clk,
			Logger:              logger,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}
}

// RunnerOptions turns the run settings into runner options. Sources are
// left to the caller.
func (c Config) RunnerOptions(backend *Backend, logger lager.Logger, clk clock.Clock) []ikou.Option {
	return []ikou.Option{
		ikou.WithLocker(backend.Locker),
		ikou.WithLogger(logger),
		ikou.WithClock(clk),
		ikou.WithUnitTimeout(c.UnitTimeout),
		ikou.WithLockKey(c.LockKey),
	}
}
