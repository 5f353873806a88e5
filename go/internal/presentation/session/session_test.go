package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
	"github.com/altarpro/altarpro/go/internal/presentation/storage"
)

func verses(n int) []state.Verse {
	out := make([]state.Verse, n)
	for i := range out {
		out[i] = state.Verse{N: fmt.Sprint(i + 1), T: fmt.Sprintf("verse %d", i+1)}
	}
	return out
}

func newController(t *testing.T, role Role, kv state.Storage, tr broadcast.Transport) *Controller {
	t.Helper()
	c, err := New(role, state.NewStore(kv), tr, WithClock(clockwork.NewFakeClock()))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func eventually(t *testing.T, c *Controller, what string, cond func(state.Snapshot) bool) state.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot phase=%s index=%d total=%d",
				what, snap.Phase(), snap.Index(), snap.TotalSlides())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func mustPatch(t *testing.T, key string, value any) state.SettingsPatch {
	t.Helper()
	p, err := state.PatchOf(key, value)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPresenterDerivesSlidesFromBroadcast(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)
	operator := newController(t, RoleOperator, storage.NewMemory(), hub)

	if _, err := operator.UpdateSettings(ctx, mustPatch(t, "versesPerSlide", 2)); err != nil {
		t.Fatal(err)
	}
	if err := operator.PresentBible(ctx, "Juan 3:1-6", verses(6)); err != nil {
		t.Fatal(err)
	}

	snap := eventually(t, presenter, "3-slide bible deck", func(s state.Snapshot) bool {
		return s.Phase() == state.PhasePresenting && s.TotalSlides() == 3
	})
	if snap.Index() != 0 {
		t.Errorf("presenter index = %d, want 0", snap.Index())
	}
	slide, ok := snap.CurrentSlide()
	if !ok || len(slide.Verses) != 2 || slide.Label != "Juan 3:1-6" {
		t.Errorf("current slide = %+v", slide)
	}
}

func TestNavigationClampsAtEdges(t *testing.T) {
	ctx := context.Background()
	operator := newController(t, RoleOperator, storage.NewMemory(), broadcast.NewMemory())

	if _, err := operator.UpdateSettings(ctx, mustPatch(t, "versesPerSlide", 2)); err != nil {
		t.Fatal(err)
	}
	if err := operator.PresentBible(ctx, "Juan 3:1-6", verses(6)); err != nil {
		t.Fatal(err)
	}

	want := []bool{true, true, false, false, false}
	for i, w := range want {
		moved, err := operator.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if moved != w {
			t.Errorf("Next #%d moved = %v, want %v", i+1, moved, w)
		}
	}
	if got := operator.Snapshot().Index(); got != 2 {
		t.Fatalf("index after 5 nexts = %d, want 2", got)
	}
	if got := operator.Snapshot().RawIndex; got != 2 {
		t.Fatalf("raw index = %d, want 2", got)
	}

	if moved, _ := operator.First(ctx); !moved {
		t.Error("First did not move from the last slide")
	}
	if moved, _ := operator.Previous(ctx); moved {
		t.Error("Previous moved below the first slide")
	}
	if moved, _ := operator.Last(ctx); !moved || operator.Snapshot().Index() != 2 {
		t.Error("Last did not reach the final slide")
	}
	if moved, _ := operator.Goto(ctx, 99); moved {
		t.Error("Goto past the end moved from the last slide")
	}
}

func TestNavigationOnIdleIsNoop(t *testing.T) {
	operator := newController(t, RoleOperator, storage.NewMemory(), nil)
	if moved, err := operator.Next(context.Background()); err != nil || moved {
		t.Fatalf("Next on idle = %v, %v", moved, err)
	}
}

func TestPresenterToleratesIndexBeforeDeck(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)

	payload, _ := broadcast.EncodeIndex(10)
	if err := hub.Publish(ctx, broadcast.DefaultChannel, payload); err != nil {
		t.Fatal(err)
	}
	snap := eventually(t, presenter, "index 10 stored", func(s state.Snapshot) bool { return s.RawIndex == 10 })
	if snap.TotalSlides() != 0 || snap.Index() != 0 || snap.Phase() != state.PhaseIdle {
		t.Fatalf("idle presenter: total=%d index=%d phase=%s", snap.TotalSlides(), snap.Index(), snap.Phase())
	}

	// The deck arrives late; the index it was sent with still applies.
	payload, _ = broadcast.EncodeIndex(1)
	hub.Publish(ctx, broadcast.DefaultChannel, payload)
	payload, _ = broadcast.EncodeDeck(state.Deck{state.BibleItem{Ref: "Salmos 23", Verses: verses(3)}})
	hub.Publish(ctx, broadcast.DefaultChannel, payload)

	eventually(t, presenter, "late deck at index 1", func(s state.Snapshot) bool {
		return s.Phase() == state.PhasePresenting && s.Index() == 1
	})
}

func TestPresenterIgnoresMalformedMessages(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)

	for _, p := range []string{
		`not json`,
		`{"type":"CLEAR"}`,
		`{"type":"INDEX","index":"2"}`,
		`{"type":"INDEX","index":-3}`,
		`{"type":"DECK","deck":[{"type":"hologram"}]}`,
	} {
		hub.Publish(ctx, broadcast.DefaultChannel, []byte(p))
	}
	valid, _ := broadcast.EncodeIndex(7)
	hub.Publish(ctx, broadcast.DefaultChannel, valid)

	snap := eventually(t, presenter, "valid index", func(s state.Snapshot) bool { return s.RawIndex == 7 })
	if snap.Phase() != state.PhaseIdle {
		t.Errorf("phase = %s, want idle", snap.Phase())
	}
}

func TestBroadcastUnavailableStillPersists(t *testing.T) {
	ctx := context.Background()
	shared := storage.NewMemory()

	tr := broadcast.Open(broadcast.Options{Backend: "unsupported"})
	operator := newController(t, RoleOperator, shared, tr)

	deck := state.Deck{state.SongVideoItem{SongID: "9", Name: "Way Maker", URL: "https://cdn/v.mp4", Blur: true}}
	if err := operator.SetDeck(ctx, deck); err != nil {
		t.Fatalf("SetDeck: %v", err)
	}

	// A window opened afterwards recovers purely from storage.
	late := state.NewStore(shared)
	late.Hydrate(ctx)
	got, ok := late.Deck().Active().(state.SongVideoItem)
	if !ok || got.URL != "https://cdn/v.mp4" {
		t.Fatalf("hydrated deck = %#v", late.Deck())
	}
	if late.CurrentIndex() != 0 {
		t.Errorf("hydrated index = %d", late.CurrentIndex())
	}
}

func TestOperatorAnnouncesStateOnStart(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)

	stored := storage.NewMemory()
	seed := state.NewStore(stored)
	seed.SetDeck(ctx, state.Deck{state.BibleItem{Ref: "Salmos 23", Verses: verses(4)}})
	seed.SetCurrentIndex(ctx, 3)

	newController(t, RoleOperator, stored, hub)

	eventually(t, presenter, "announced state", func(s state.Snapshot) bool {
		return s.Phase() == state.PhasePresenting && s.Index() == 3
	})
}

func TestOperatorDoesNotApplyBroadcasts(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	operator := newController(t, RoleOperator, storage.NewMemory(), hub)
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)

	// A second operator's INDEX reaches the presenter but not this operator.
	payload, _ := broadcast.EncodeIndex(4)
	hub.Publish(ctx, broadcast.DefaultChannel, payload)
	eventually(t, presenter, "index 4", func(s state.Snapshot) bool { return s.RawIndex == 4 })

	if got := operator.Snapshot().RawIndex; got != 0 {
		t.Fatalf("operator applied a broadcast: index = %d", got)
	}
}

func TestPresenterRejectsMutations(t *testing.T) {
	ctx := context.Background()
	presenter := newController(t, RolePresenter, storage.NewMemory(), nil)

	checks := map[string]error{}
	_, checks["UpdateSettings"] = presenter.UpdateSettings(ctx, mustPatch(t, "fontRem", 3))
	_, checks["StepSetting"] = presenter.StepSetting(ctx, "fontRem", 1)
	_, checks["Next"] = presenter.Next(ctx)
	checks["SetDeck"] = presenter.SetDeck(ctx, nil)
	checks["SetCurrentIndex"] = presenter.SetCurrentIndex(ctx, 1)
	checks["PresentBible"] = presenter.PresentBible(ctx, "Salmos 23", verses(1))

	for name, err := range checks {
		if !errors.Is(err, ErrNotOperator) {
			t.Errorf("%s on presenter = %v, want ErrNotOperator", name, err)
		}
	}
}

func TestConcurrentStepsAccumulate(t *testing.T) {
	ctx := context.Background()
	operator := newController(t, RoleOperator, storage.NewMemory(), nil)

	const steps = 8
	var wg sync.WaitGroup
	for range steps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := operator.StepSetting(ctx, "maxWidthPx", 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	want := state.DefaultSettings().MaxWidthPx + steps*50
	if got := operator.Snapshot().Settings.MaxWidthPx; got != want {
		t.Errorf("maxWidthPx = %d, want %d", got, want)
	}

	if _, err := operator.StepSetting(ctx, "textColor", 1); err == nil {
		t.Error("stepping a non-numeric setting succeeded")
	}
}

func TestPresentSong(t *testing.T) {
	ctx := context.Background()
	operator := newController(t, RoleOperator, storage.NewMemory(), nil)
	noBlur := false

	cases := []struct {
		name      string
		song      Song
		wantKind  state.ItemKind
		wantColor state.TextColor
		wantBlur  bool
		wantTotal int
	}{
		{
			name:      "lyrics preferred over video",
			song:      Song{ID: "1", Name: "Oceans", Lyrics: "a\nb\n\nc", URL: "https://v/1", DefaultTextColor: "black"},
			wantKind:  state.KindSongLyrics,
			wantColor: state.TextColorDark,
			wantBlur:  true,
			wantTotal: 2,
		},
		{
			name:      "precomputed chunks win",
			song:      Song{ID: "2", Name: "Cornerstone", Lyrics: "x\n\ny\n\nz", LyricChunks: []string{"only"}, DefaultTextColor: "white"},
			wantKind:  state.KindSongLyrics,
			wantColor: state.TextColorLight,
			wantBlur:  true,
			wantTotal: 1,
		},
		{
			name:      "video when no lyrics",
			song:      Song{ID: "3", Name: "Intro", URL: " https://v/3 ", DefaultBlur: &noBlur},
			wantKind:  state.KindSongVideo,
			wantColor: state.TextColorLight,
			wantBlur:  false,
			wantTotal: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := operator.PresentSongAuto(ctx, tc.song); err != nil {
				t.Fatal(err)
			}
			snap := operator.Snapshot()
			slide, ok := snap.CurrentSlide()
			if !ok {
				t.Fatal("no current slide")
			}
			if slide.Kind != tc.wantKind || slide.TextColor != tc.wantColor || slide.Blur != tc.wantBlur {
				t.Errorf("slide = %+v", slide)
			}
			if snap.TotalSlides() != tc.wantTotal {
				t.Errorf("total = %d, want %d", snap.TotalSlides(), tc.wantTotal)
			}
		})
	}

	err := operator.PresentSongAuto(ctx, Song{Name: "Empty", Lyrics: "  \n "})
	if !errors.Is(err, ErrNothingToPresent) {
		t.Errorf("empty song = %v, want ErrNothingToPresent", err)
	}
}

func TestSetDeckRejectsItemsWithoutSlides(t *testing.T) {
	ctx := context.Background()
	operator := newController(t, RoleOperator, storage.NewMemory(), nil)
	if err := operator.PresentBible(ctx, "Salmos 23", verses(2)); err != nil {
		t.Fatal(err)
	}

	decks := map[string]state.Deck{
		"lyrics without chunks": {state.SongLyricsItem{SongID: "9", Name: "Vacía"}},
		"bible without verses":  {state.BibleItem{Ref: "Juan 3"}},
	}
	for name, deck := range decks {
		if err := operator.SetDeck(ctx, deck); !errors.Is(err, ErrNothingToPresent) {
			t.Errorf("%s: SetDeck = %v, want ErrNothingToPresent", name, err)
		}
	}

	snap := operator.Snapshot()
	if item := snap.Deck.Active(); item == nil || item.Label() != "Salmos 23" {
		t.Errorf("rejected deck replaced the presentation: %+v", snap.Deck)
	}
}

func TestClearDeckReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	operator := newController(t, RoleOperator, kv, nil)

	if err := operator.PresentBible(ctx, "Salmos 23", verses(2)); err != nil {
		t.Fatal(err)
	}
	if err := operator.ClearDeck(ctx); err != nil {
		t.Fatal(err)
	}
	if operator.Snapshot().Phase() != state.PhaseIdle {
		t.Fatal("ClearDeck did not return to idle")
	}
	if _, ok, _ := kv.Get(ctx, "altarpro.deck"); ok {
		t.Error("deck key still stored after ClearDeck")
	}
}

func TestWatchAndPresenterDock(t *testing.T) {
	ctx := context.Background()
	hub := broadcast.NewMemory()
	presenter := newController(t, RolePresenter, storage.NewMemory(), hub)
	operator := newController(t, RoleOperator, storage.NewMemory(), hub)

	changes := make(chan state.Snapshot, 16)
	cancel := presenter.Watch(func(s state.Snapshot) { changes <- s })
	defer cancel()

	if !presenter.DockVisible() {
		t.Error("dock hidden on start")
	}
	if _, err := operator.UpdateSettings(ctx, mustPatch(t, "showDock", false)); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for hidden := false; !hidden; {
		select {
		case s := <-changes:
			hidden = !s.Settings.ShowDock
		case <-timeout:
			t.Fatal("watcher never saw showDock=false")
		}
	}
	if presenter.DockVisible() {
		t.Error("dock visible after showDock=false")
	}
	if operator.DockVisible() {
		t.Error("operator reports a dock")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("presenter"); err != nil || r != RolePresenter {
		t.Errorf("ParseRole(presenter) = %v, %v", r, err)
	}
	if _, err := ParseRole("solo"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(solo) = %v", err)
	}
}
