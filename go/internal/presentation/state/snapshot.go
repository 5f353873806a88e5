package state

// Phase is the presentation state of a window.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePresenting Phase = "presenting"
)

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Settings Settings
	Deck     Deck
	RawIndex int
}

// Phase reports Idle when no deck is active.
func (s Snapshot) Phase() Phase {
	if s.Deck.Active() == nil {
		return PhaseIdle
	}
	return PhasePresenting
}

// TotalSlides derives the slide count of the active item.
func (s Snapshot) TotalSlides() int {
	item := s.Deck.Active()
	if item == nil {
		return 0
	}
	return TotalSlides(item, s.Settings)
}

// Index is the raw index clamped into the valid slide range.
func (s Snapshot) Index() int {
	return ClampIndex(s.RawIndex, s.TotalSlides())
}

// CurrentSlide derives the slide at Index.
func (s Snapshot) CurrentSlide() (Slide, bool) {
	return CurrentSlide(s.Deck, s.Settings, s.RawIndex)
}
