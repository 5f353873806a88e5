package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// KV is the contract every backend satisfies. Get reports absent keys with
// ok=false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	Path    string // directory for file, database file for sqlite

	DB *sql.DB

	NATSConn *nats.Conn
	Bucket   string
}

// Open builds the configured backend. An empty backend means file.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case "", BackendFile:
		return NewFile(opts.Path)
	case BackendSQLite:
		return NewSQLite(opts.Path)
	case BackendPostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("postgres storage: no database connection")
		}
		return NewPostgres(ctx, opts.DB)
	case BackendNATS:
		if opts.NATSConn == nil {
			return nil, fmt.Errorf("nats storage: no connection")
		}
		return NewNATSKV(ctx, opts.NATSConn, opts.Bucket)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
