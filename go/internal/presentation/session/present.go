package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// Song is what the catalog hands over for presentation.
type Song struct {
	ID               string
	Name             string
	Lyrics           string
	LyricChunks      []string // precomputed stanzas, preferred over Lyrics
	URL              string
	DefaultTextColor string // "light", "dark", "white" or "black"
	DefaultBlur      *bool  // nil means blur
}

func (s Song) hasLyrics() bool { return strings.TrimSpace(s.Lyrics) != "" || len(s.LyricChunks) > 0 }
func (s Song) hasVideo() bool  { return strings.TrimSpace(s.URL) != "" }

func (s Song) blur() bool {
	if s.DefaultBlur == nil {
		return true
	}
	return *s.DefaultBlur
}

// PresentBible shows a passage from its first verse group.
func (c *Controller) PresentBible(ctx context.Context, ref string, verses []state.Verse) error {
	if len(verses) == 0 {
		return fmt.Errorf("%w: %s has no verses", ErrNothingToPresent, ref)
	}
	return c.SetDeck(ctx, state.Deck{state.BibleItem{Ref: ref, Verses: verses}})
}

// PresentSongLyrics shows a song stanza by stanza.
func (c *Controller) PresentSongLyrics(ctx context.Context, song Song) error {
	chunks := song.LyricChunks
	if len(chunks) == 0 {
		chunks = state.SplitLyrics(song.Lyrics)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: song %q has no lyrics", ErrNothingToPresent, song.Name)
	}

	item := state.SongLyricsItem{
		SongID:    song.ID,
		Name:      song.Name,
		Chunks:    chunks,
		TextColor: state.NormalizeTextColor(song.DefaultTextColor, c.store.Settings().TextColor),
		Blur:      song.blur(),
	}
	return c.SetDeck(ctx, state.Deck{item})
}

// PresentSongVideo shows a song's video.
func (c *Controller) PresentSongVideo(ctx context.Context, song Song) error {
	if !song.hasVideo() {
		return fmt.Errorf("%w: song %q has no video", ErrNothingToPresent, song.Name)
	}

	item := state.SongVideoItem{
		SongID:    song.ID,
		Name:      song.Name,
		URL:       strings.TrimSpace(song.URL),
		TextColor: state.NormalizeTextColor(song.DefaultTextColor, c.store.Settings().TextColor),
		Blur:      song.blur(),
	}
	return c.SetDeck(ctx, state.Deck{item})
}

// PresentSongAuto picks lyrics when the song has them, otherwise its video.
func (c *Controller) PresentSongAuto(ctx context.Context, song Song) error {
	switch {
	case song.hasLyrics():
		return c.PresentSongLyrics(ctx, song)
	case song.hasVideo():
		return c.PresentSongVideo(ctx, song)
	}
	return fmt.Errorf("%w: song %q has neither lyrics nor video", ErrNothingToPresent, song.Name)
}
