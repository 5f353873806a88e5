package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnStatus is satisfied by *nats.Conn.
type ConnStatus interface {
	IsConnected() bool
}

type HealthStatus struct {
	Healthy           bool        `json:"healthy"`
	Phase             state.Phase `json:"phase"`
	Presenters        int         `json:"presenters"`
	DatabaseConnected *bool       `json:"database_connected,omitempty"`
	NATSConnected     *bool       `json:"nats_connected,omitempty"`
	Errors            []string    `json:"errors"`
}

// HealthChecker reports on the gateway and the backends it depends on.
type HealthChecker struct {
	hub      *Hub
	provider StateProvider
	db       Pinger
	nats     ConnStatus
	timeout  time.Duration
}

func NewHealthChecker(hub *Hub, provider StateProvider) *HealthChecker {
	return &HealthChecker{hub: hub, provider: provider, timeout: 2 * time.Second}
}

// SetDatabase adds a database ping to the check.
func (h *HealthChecker) SetDatabase(db Pinger) { h.db = db }

// SetNATS adds the NATS connection state to the check.
func (h *HealthChecker) SetNATS(nc ConnStatus) { h.nats = nc }

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:    true,
		Phase:      h.provider.Snapshot().Phase(),
		Presenters: h.hub.Stats().TotalConnections,
		Errors:     []string{},
	}

	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.db.PingContext(pingCtx)
		cancel()
		connected := err == nil
		status.DatabaseConnected = &connected
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
	}

	if h.nats != nil {
		connected := h.nats.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

// HandleHealth handles GET /health, answering 503 when unhealthy.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Debug().Err(err).Msg("failed to write health check response")
	}
}
