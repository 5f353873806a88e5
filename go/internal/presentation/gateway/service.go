package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service bundles the presenter hub with the HTTP surfaces around it.
type Service struct {
	hub          *Hub
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
	operator     *OperatorService
	health       *HealthChecker
}

// NewService serves hub connections and the state of provider. operator may
// be nil for a read-only gateway.
func NewService(hub *Hub, provider StateProvider, resolver BackgroundResolver, operator *OperatorService) *Service {
	return &Service{
		hub:          hub,
		wsHandler:    NewWebSocketHandler(hub),
		stateHandler: NewStateHandler(provider, resolver),
		operator:     operator,
		health:       NewHealthChecker(hub, provider),
	}
}

// Start runs the hub until ctx is cancelled, then closes it.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting presentation gateway")

	go s.hub.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("presentation gateway shutting down")
	return s.Stop()
}

// Stop disconnects every presenter.
func (s *Service) Stop() error {
	return s.hub.Close()
}

// RegisterRoutes registers the websocket, state and operator routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	if s.operator != nil {
		mux.Handle(NewOperatorServiceHandler(s.operator))
	}
	mux.HandleFunc("/health", s.health.HandleHealth)
	log.Info().Msg("presentation gateway routes registered")
}

// Health returns the checker behind /health so callers can add backends.
func (s *Service) Health() *HealthChecker {
	return s.health
}

func (s *Service) Stats() ConnectionStats {
	return s.hub.Stats()
}
