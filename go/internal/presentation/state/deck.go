package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ItemKind discriminates the slide item variants.
type ItemKind string

const (
	KindBible      ItemKind = "bible"
	KindSongLyrics ItemKind = "songLyrics"
	KindSongVideo  ItemKind = "songVideo"
)

var (
	ErrUnknownItemKind = errors.New("unknown slide item type")
	ErrInvalidItem     = errors.New("invalid slide item")
)

// SlideItem is one presentable unit of a deck. The set of implementations is
// closed: BibleItem, SongLyricsItem and SongVideoItem.
type SlideItem interface {
	Kind() ItemKind
	// Label is the reference or song name shown next to the slide.
	Label() string
	validate() error
}

// Verse is a single verse record of a passage.
type Verse struct {
	N string `json:"n"`
	T string `json:"t"`
}

// UnmarshalJSON accepts the verse number as either a string or a number.
func (v *Verse) UnmarshalJSON(data []byte) error {
	var raw struct {
		N json.RawMessage `json:"n"`
		T string          `json:"t"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.T = raw.T
	v.N = ""
	if len(raw.N) == 0 || string(raw.N) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.N, &s); err == nil {
		v.N = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.N, &n); err != nil {
		return fmt.Errorf("verse number: %w", err)
	}
	v.N = n.String()
	return nil
}

// BibleItem is a passage with its reference label and ordered verses.
type BibleItem struct {
	Ref    string
	Verses []Verse
}

func (BibleItem) Kind() ItemKind  { return KindBible }
func (b BibleItem) Label() string { return b.Ref }

func (b BibleItem) validate() error {
	if b.Ref == "" {
		return fmt.Errorf("%w: bible item without ref", ErrInvalidItem)
	}
	return nil
}

func (b BibleItem) MarshalJSON() ([]byte, error) {
	verses := b.Verses
	if verses == nil {
		verses = []Verse{}
	}
	return json.Marshal(struct {
		Type   ItemKind `json:"type"`
		Ref    string   `json:"ref"`
		Verses []Verse  `json:"verses"`
	}{KindBible, b.Ref, verses})
}

// SongLyricsItem presents a song as a sequence of stanzas.
type SongLyricsItem struct {
	SongID    string
	Name      string
	Chunks    []string
	TextColor TextColor
	Blur      bool
}

func (SongLyricsItem) Kind() ItemKind  { return KindSongLyrics }
func (s SongLyricsItem) Label() string { return s.Name }

func (s SongLyricsItem) validate() error { return nil }

func (s SongLyricsItem) MarshalJSON() ([]byte, error) {
	chunks := s.Chunks
	if chunks == nil {
		chunks = []string{}
	}
	return json.Marshal(struct {
		Type      ItemKind  `json:"type"`
		SongID    string    `json:"songId"`
		Name      string    `json:"name"`
		Chunks    []string  `json:"chunks"`
		TextColor TextColor `json:"textColor"`
		Blur      bool      `json:"blur"`
	}{KindSongLyrics, s.SongID, s.Name, chunks, s.TextColor, s.Blur})
}

// SongVideoItem presents a song as a single video slide.
type SongVideoItem struct {
	SongID    string
	Name      string
	URL       string
	TextColor TextColor
	Blur      bool
}

func (SongVideoItem) Kind() ItemKind  { return KindSongVideo }
func (s SongVideoItem) Label() string { return s.Name }

func (s SongVideoItem) validate() error {
	if s.URL == "" {
		return fmt.Errorf("%w: song video without url", ErrInvalidItem)
	}
	return nil
}

func (s SongVideoItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      ItemKind  `json:"type"`
		SongID    string    `json:"songId"`
		Name      string    `json:"name"`
		URL       string    `json:"url"`
		TextColor TextColor `json:"textColor"`
		Blur      bool      `json:"blur"`
	}{KindSongVideo, s.SongID, s.Name, s.URL, s.TextColor, s.Blur})
}

// itemWire is the union of every variant's wire fields.
type itemWire struct {
	Type      ItemKind        `json:"type"`
	Ref       string          `json:"ref"`
	Verses    []Verse         `json:"verses"`
	Chunks    json.RawMessage `json:"chunks"`
	SongID    json.RawMessage `json:"songId"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	TextColor TextColor       `json:"textColor"`
	Blur      bool            `json:"blur"`
}

// DecodeItem decodes a single slide item from its tagged JSON form.
func DecodeItem(data []byte) (SlideItem, error) {
	var w itemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode slide item: %w", err)
	}

	var item SlideItem
	switch w.Type {
	case KindBible:
		verses := w.Verses
		if len(verses) == 0 && len(w.Chunks) > 0 {
			// Older decks stored pre-chunked verses; flatten them.
			var chunks [][]Verse
			if err := json.Unmarshal(w.Chunks, &chunks); err != nil {
				return nil, fmt.Errorf("%w: bible chunks: %v", ErrInvalidItem, err)
			}
			for _, c := range chunks {
				verses = append(verses, c...)
			}
		}
		item = BibleItem{Ref: w.Ref, Verses: verses}

	case KindSongLyrics:
		var chunks []string
		if len(w.Chunks) > 0 && string(w.Chunks) != "null" {
			if err := json.Unmarshal(w.Chunks, &chunks); err != nil {
				return nil, fmt.Errorf("%w: lyric chunks: %v", ErrInvalidItem, err)
			}
		}
		item = SongLyricsItem{
			SongID:    songID(w.SongID),
			Name:      w.Name,
			Chunks:    chunks,
			TextColor: w.TextColor,
			Blur:      w.Blur,
		}

	case KindSongVideo:
		item = SongVideoItem{
			SongID:    songID(w.SongID),
			Name:      w.Name,
			URL:       w.URL,
			TextColor: w.TextColor,
			Blur:      w.Blur,
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemKind, w.Type)
	}

	if err := item.validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// songID accepts string or numeric document ids.
func songID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strconv.Quote(string(raw))
}

// Deck is the ordered collection wrapping the active presentable item. A nil
// deck means no presentation is active.
type Deck []SlideItem

// Active returns the item currently rendered, or nil when idle.
func (d Deck) Active() SlideItem {
	if len(d) == 0 {
		return nil
	}
	return d[0]
}

// Normalize maps an empty deck to nil so that "idle" has one representation.
func (d Deck) Normalize() Deck {
	if len(d) == 0 {
		return nil
	}
	return d
}

func (d Deck) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal([]SlideItem(d))
}

func (d *Deck) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("decode deck: %w", err)
	}
	out := make(Deck, 0, len(raws))
	for i, raw := range raws {
		item, err := DecodeItem(raw)
		if err != nil {
			return fmt.Errorf("deck item %d: %w", i, err)
		}
		out = append(out, item)
	}
	*d = out.Normalize()
	return nil
}
