package store

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // "memory" or "redis"
	RedisHost   string
	RedisPort   string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

// Open builds the configured store. The returned close function releases any
// connection the store holds.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), func() error { return nil }, nil
	case "redis":
		addr := net.JoinHostPort(opts.RedisHost, opts.RedisPort)
		client, err := Conn(ctx, addr, opts.Password, opts.DB, opts.DialTimeout)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(client, opts.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
