package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles presenter websocket upgrades
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandlePresenterConnection handles GET /ws/present?channel=<name>. The
// channel defaults to the hub's default channel.
func (h *WebSocketHandler) HandlePresenterConnection(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = h.hub.config.DefaultChannel
	}

	// On failure the upgrader has already answered the request.
	if err := h.hub.UpgradeConnection(w, r, channel); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("presenter websocket rejected")
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hub.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/present", h.HandlePresenterConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
