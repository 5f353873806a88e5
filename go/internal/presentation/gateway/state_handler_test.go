package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

func TestNewStateResponse(t *testing.T) {
	deck := state.Deck{state.SongLyricsItem{SongID: "7", Name: "Cuán grande es Él", Chunks: []string{"a", "b", "c"}}}
	cases := []struct {
		name      string
		snap      state.Snapshot
		wantPhase state.Phase
		wantIndex int
		wantTotal int
		wantSlide bool
	}{
		{"idle", state.Snapshot{Settings: state.DefaultSettings(), RawIndex: 4}, state.PhaseIdle, 0, 0, false},
		{"clamped", state.Snapshot{Settings: state.DefaultSettings(), Deck: deck, RawIndex: 9}, state.PhasePresenting, 2, 3, true},
		{"in range", state.Snapshot{Settings: state.DefaultSettings(), Deck: deck, RawIndex: 1}, state.PhasePresenting, 1, 3, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := NewStateResponse(context.Background(), tc.snap, nil)
			if resp.Phase != tc.wantPhase || resp.Index != tc.wantIndex || resp.Total != tc.wantTotal || (resp.Slide != nil) != tc.wantSlide {
				t.Errorf("response = %+v", resp)
			}
			if resp.ResolvedBackgroundURL != "" {
				t.Errorf("resolved background without a resolver: %q", resp.ResolvedBackgroundURL)
			}

			raw, err := json.Marshal(resp)
			if err != nil {
				t.Fatal(err)
			}
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				t.Fatal(err)
			}
			for _, key := range []string{"phase", "settings", "deck", "index", "total", "slide"} {
				if _, ok := fields[key]; !ok {
					t.Errorf("rendered state lacks %q: %s", key, raw)
				}
			}
		})
	}
}
