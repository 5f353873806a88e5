package state

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultNamespace prefixes every storage key written by the store.
const DefaultNamespace = "altarpro"

// Storage is the durable key-value medium behind the store. Get reports
// ok=false when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Slice names one independently persisted part of the state.
type Slice string

const (
	SliceSettings Slice = "settings"
	SliceDeck     Slice = "deck"
	SliceIndex    Slice = "index"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) StoreOption {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithFallbackHook is called whenever a slice falls back to its default
// because storage failed or held a corrupt entry.
func WithFallbackHook(fn func(Slice)) StoreOption {
	return func(s *Store) { s.onFallback = fn }
}

// Store is the single source of truth for settings, deck and current index of
// one window. Every mutation is written to storage before it returns.
// Storage failures never reach the caller: reads fall back to defaults per
// slice and writes are logged.
type Store struct {
	mu         sync.RWMutex
	storage    Storage
	namespace  string
	onFallback func(Slice)

	settings Settings
	deck     Deck
	index    int
}

// NewStore creates a store holding defaults. Call Hydrate to load persisted
// state.
func NewStore(storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage:   storage,
		namespace: DefaultNamespace,
		settings:  DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key of a slice.
func (s *Store) Key(slice Slice) string {
	return s.namespace + "." + string(slice)
}

// Hydrate loads each slice from storage independently. A missing or corrupt
// slice resets to its default without affecting the others.
func (s *Store) Hydrate(ctx context.Context) {
	settings := s.loadSettings(ctx)
	deck := s.loadDeck(ctx)
	index := s.loadIndex(ctx)

	s.mu.Lock()
	s.settings = settings
	s.deck = deck
	s.index = index
	s.mu.Unlock()

	log.Debug().
		Str("namespace", s.namespace).
		Bool("idle", deck == nil).
		Int("index", index).
		Msg("presentation state hydrated")
}

func (s *Store) loadSettings(ctx context.Context) Settings {
	raw, ok := s.read(ctx, SliceSettings)
	if !ok {
		return DefaultSettings()
	}
	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		s.fallback(SliceSettings, err)
		return DefaultSettings()
	}
	return settings
}

func (s *Store) loadDeck(ctx context.Context) Deck {
	raw, ok := s.read(ctx, SliceDeck)
	if !ok {
		return nil
	}
	var deck Deck
	if err := json.Unmarshal([]byte(raw), &deck); err != nil {
		s.fallback(SliceDeck, err)
		return nil
	}
	return deck
}

func (s *Store) loadIndex(ctx context.Context) int {
	raw, ok := s.read(ctx, SliceIndex)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.fallback(SliceIndex, err)
		return 0
	}
	return n
}

func (s *Store) read(ctx context.Context, slice Slice) (string, bool) {
	raw, ok, err := s.storage.Get(ctx, s.Key(slice))
	if err != nil {
		s.fallback(slice, err)
		return "", false
	}
	return raw, ok
}

func (s *Store) fallback(slice Slice, err error) {
	log.Warn().Err(err).Str("slice", string(slice)).Msg("using default for unreadable state slice")
	if s.onFallback != nil {
		s.onFallback(slice)
	}
}

// UpdateSettings merges patch into the current settings and persists the
// result.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.settings.Merge(patch)
	s.persistSettings(ctx)
	return s.settings.Clone()
}

// ResetSettings restores and persists the default settings.
func (s *Store) ResetSettings(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultSettings()
	s.persistSettings(ctx)
	return s.settings.Clone()
}

func (s *Store) persistSettings(ctx context.Context) {
	data, err := json.Marshal(s.settings)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode settings")
		return
	}
	s.write(ctx, SliceSettings, string(data))
}

// SetDeck replaces the deck. A nil or empty deck removes the stored entry,
// which is how an idle presentation is recorded.
func (s *Store) SetDeck(ctx context.Context, deck Deck) {
	deck = deck.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck = deck

	if deck == nil {
		if err := s.storage.Delete(ctx, s.Key(SliceDeck)); err != nil {
			log.Warn().Err(err).Str("key", s.Key(SliceDeck)).Msg("failed to remove stored deck")
		}
		return
	}

	data, err := json.Marshal(deck)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode deck")
		return
	}
	s.write(ctx, SliceDeck, string(data))
}

// SetCurrentIndex stores n as given. Consumers clamp it on read because the
// valid range depends on settings that may change later.
func (s *Store) SetCurrentIndex(ctx context.Context, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = n
	s.write(ctx, SliceIndex, strconv.Itoa(n))
}

func (s *Store) write(ctx context.Context, slice Slice, value string) {
	if err := s.storage.Set(ctx, s.Key(slice), value); err != nil {
		log.Warn().Err(err).Str("key", s.Key(slice)).Msg("failed to persist state slice")
	}
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Deck returns the current deck, nil when idle.
func (s *Store) Deck() Deck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deck
}

// CurrentIndex returns the raw stored index.
func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Snapshot returns a consistent copy of all three slices.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Settings: s.settings.Clone(),
		Deck:     s.deck,
		RawIndex: s.index,
	}
}
