package state

import (
	"regexp"
	"strings"
)

// stanzaBreak matches one or more blank lines between stanzas.
var stanzaBreak = regexp.MustCompile(`\n\s*\n+`)

// ChunkVerses groups verses into consecutive slides of size versesPerSlide.
// Sizes below one are treated as one. The result depends only on its inputs,
// so operator and presenter always derive the same slides.
func ChunkVerses(verses []Verse, versesPerSlide int) [][]Verse {
	size := versesPerSlide
	if size < 1 {
		size = 1
	}
	out := make([][]Verse, 0, (len(verses)+size-1)/size)
	for i := 0; i < len(verses); i += size {
		end := i + size
		if end > len(verses) {
			end = len(verses)
		}
		out = append(out, verses[i:end])
	}
	return out
}

// SplitLyrics splits lyrics into stanzas separated by blank lines.
func SplitLyrics(lyrics string) []string {
	lyrics = strings.TrimSpace(lyrics)
	if lyrics == "" {
		return nil
	}
	var out []string
	for _, chunk := range stanzaBreak.Split(lyrics, -1) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// TotalSlides is the number of slides derived from item under settings.
func TotalSlides(item SlideItem, settings Settings) int {
	switch it := item.(type) {
	case BibleItem:
		return len(ChunkVerses(it.Verses, settings.VersesPerSlide))
	case SongLyricsItem:
		return len(it.Chunks)
	case SongVideoItem:
		return 1
	}
	return 0
}

// ClampIndex forces raw into [0, total-1], or 0 when there are no slides.
func ClampIndex(raw, total int) int {
	if total <= 0 || raw < 0 {
		return 0
	}
	if raw > total-1 {
		return total - 1
	}
	return raw
}

// Slide is one renderable unit derived from the active deck item.
type Slide struct {
	Kind      ItemKind  `json:"kind"`
	Position  int       `json:"position"`
	Total     int       `json:"total"`
	Label     string    `json:"label,omitempty"`
	Verses    []Verse   `json:"verses,omitempty"`
	Lines     []string  `json:"lines,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	TextColor TextColor `json:"textColor"`
	Blur      bool      `json:"blur"`
}

// CurrentSlide derives the slide at rawIndex (clamped) from the active item of
// deck. It returns false when nothing can be shown.
func CurrentSlide(deck Deck, settings Settings, rawIndex int) (Slide, bool) {
	item := deck.Active()
	if item == nil {
		return Slide{}, false
	}
	total := TotalSlides(item, settings)
	if total == 0 {
		return Slide{}, false
	}
	pos := ClampIndex(rawIndex, total)

	slide := Slide{
		Kind:      item.Kind(),
		Position:  pos,
		Total:     total,
		Label:     item.Label(),
		TextColor: settings.TextColor,
		Blur:      settings.BackdropBlurPx > 0,
	}

	switch it := item.(type) {
	case BibleItem:
		slide.Verses = ChunkVerses(it.Verses, settings.VersesPerSlide)[pos]
	case SongLyricsItem:
		slide.Lines = strings.Split(it.Chunks[pos], "\n")
		slide.TextColor = itemColor(it.TextColor, settings)
		slide.Blur = it.Blur
	case SongVideoItem:
		slide.VideoURL = it.URL
		slide.TextColor = itemColor(it.TextColor, settings)
		slide.Blur = it.Blur
	}
	return slide, true
}

func itemColor(c TextColor, settings Settings) TextColor {
	if c.Valid() {
		return c
	}
	return settings.TextColor
}

// NormalizeTextColor maps song color names onto text color modes: "white" is
// light, "black" is dark and an empty value falls back to fallback.
func NormalizeTextColor(color string, fallback TextColor) TextColor {
	switch color {
	case "":
		if fallback.Valid() {
			return fallback
		}
		return TextColorLight
	case "white":
		return TextColorLight
	case "black":
		return TextColorDark
	}
	return TextColor(color)
}
