package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// StateProvider supplies the current presentation state.
type StateProvider interface {
	Snapshot() state.Snapshot
}

// BackgroundResolver turns a stored backgroundUrl into a loadable URL.
type BackgroundResolver interface {
	ResolveOrEmpty(ctx context.Context, ref *string) string
}

// StateResponse is what a presenter loads before subscribing.
type StateResponse struct {
	Phase                 state.Phase    `json:"phase"`
	Settings              state.Settings `json:"settings"`
	Deck                  state.Deck     `json:"deck"`
	Index                 int            `json:"index"`
	Total                 int            `json:"total"`
	Slide                 *state.Slide   `json:"slide"`
	ResolvedBackgroundURL string         `json:"resolvedBackgroundUrl,omitempty"`
}

// NewStateResponse renders snap, resolving its background when resolver is
// set.
func NewStateResponse(ctx context.Context, snap state.Snapshot, resolver BackgroundResolver) StateResponse {
	resp := StateResponse{
		Phase:    snap.Phase(),
		Settings: snap.Settings.Display(),
		Deck:     snap.Deck,
		Index:    snap.Index(),
		Total:    snap.TotalSlides(),
	}
	if slide, ok := snap.CurrentSlide(); ok {
		resp.Slide = &slide
	}
	if resolver != nil {
		resp.ResolvedBackgroundURL = resolver.ResolveOrEmpty(ctx, snap.Settings.BackgroundURL)
	}
	return resp
}

// StateHandler serves the presentation snapshot
type StateHandler struct {
	provider StateProvider
	resolver BackgroundResolver
}

func NewStateHandler(provider StateProvider, resolver BackgroundResolver) *StateHandler {
	return &StateHandler{provider: provider, resolver: resolver}
}

// HandleGetState handles GET /api/presentation/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := NewStateResponse(r.Context(), h.provider.Snapshot(), h.resolver)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode presentation state")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/presentation/state", h.HandleGetState)
}
