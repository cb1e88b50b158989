package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Load when no token is stored.
	ErrNotFound = errors.New("tokenstore: token not found")
	// ErrBackend wraps failures of the underlying storage.
	ErrBackend = errors.New("tokenstore: backend unavailable")
	// ErrCorrupt is returned when the stored record cannot be decoded.
	ErrCorrupt = errors.New("tokenstore: corrupt record")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("tokenstore: unknown driver")
)

// Store is the durable single-token record.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Driver names accepted by Open.
const (
	DriverMemory  = "memory"
	DriverFile    = "file"
	DriverRedis   = "redis"
	DriverKeyring = "keyring"
)

// Options selects and configures a driver.
type Options struct {
	Driver string
	// Key names the record within shared backends (redis key suffix, keyring user).
	Key            string
	FilePath       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	RedisTTL       time.Duration
	KeyringService string
}

// Open builds the store named by opts.Driver. An empty driver selects memory.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		if opts.FilePath == "" {
			return nil, fmt.Errorf("tokenstore: file driver requires a path")
		}
		return NewFileStore(opts.FilePath), nil
	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("tokenstore: redis driver requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		return NewRedisStore(client, opts.RedisPrefix, opts.Key, opts.RedisTTL), nil
	case DriverKeyring:
		return NewKeyringStore(opts.KeyringService, opts.Key), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
