package broadcast

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/metrics"
)

const (
	BackendMemory    = "memory"
	BackendNATS      = "nats"
	BackendPostgres  = "postgres"
	BackendWebSocket = "websocket"
	BackendNone      = "none"
)

var ErrUnknownBackend = errors.New("unknown broadcast backend")

// Options selects and configures a transport for Open.
type Options struct {
	Backend string

	NATS     NATSConfig
	NATSConn *nats.Conn // reused instead of dialing when set

	DB       *sql.DB
	PGNotify PGNotifyConfig

	WebSocket WebSocketConfig

	Metrics metrics.Collector
}

// Open builds the configured transport. A transport that cannot be built
// is logged and replaced by Noop: broadcasting is best effort and must not
// stop the caller from persisting state.
func Open(opts Options) Transport {
	t, err := build(opts)
	if err != nil {
		log.Warn().Err(err).Str("backend", opts.Backend).Msg("broadcast unavailable, continuing without it")
		t = Noop{}
	}
	if opts.Metrics != nil {
		t = NewInstrumented(t, opts.Metrics)
	}
	return t
}

func build(opts Options) (Transport, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendNATS:
		if opts.NATSConn != nil {
			return NewNATS(opts.NATSConn), nil
		}
		return DialNATS(opts.NATS)
	case BackendPostgres:
		if opts.DB == nil {
			return nil, fmt.Errorf("postgres broadcast: no database connection")
		}
		if opts.PGNotify.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres broadcast: no listener DSN")
		}
		return NewPGNotify(opts.DB, opts.PGNotify), nil
	case BackendWebSocket:
		return NewWebSocketClient(opts.WebSocket), nil
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
