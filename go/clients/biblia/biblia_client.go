// Package biblia fetches passage text from the Bible text service.
package biblia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/altarpro/altarpro/go/clients"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// ErrFetchFailed wraps every upstream failure: transport errors, non-2xx
// responses and bodies without verse text. Requests are not retried.
var ErrFetchFailed = errors.New("bible fetch failed")

// Passage is a labelled run of verses ready to present.
type Passage struct {
	Ref    string        `json:"ref"`
	Verses []state.Verse `json:"verses"`
}

type BibliaClient struct {
	*clients.BaseClient
}

func NewBibliaClient(baseURL string) *BibliaClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &BibliaClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// Slug turns a book name into its path segment: "1 Juan" becomes "1-juan"
// and "Éxodo" becomes "exodo".
func Slug(book string) string {
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripAccents, strings.TrimSpace(book))
	if err != nil {
		folded = strings.TrimSpace(book)
	}
	return whitespace.ReplaceAllString(strings.ToLower(folded), "-")
}

// FetchChapter fetches a whole chapter, numbering verses from 1.
func (c *BibliaClient) FetchChapter(ctx context.Context, book string, chapter int) (Passage, error) {
	slug := Slug(book)
	body, err := c.Get(ctx, fmt.Sprintf(ChapterEndpoint, slug, chapter))
	if err != nil {
		return Passage{}, fmt.Errorf("%w: %s %d: %v", ErrFetchFailed, slug, chapter, err)
	}

	var resp struct {
		Text []string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Passage{}, fmt.Errorf("%w: decode chapter: %v", ErrFetchFailed, err)
	}
	if len(resp.Text) == 0 {
		return Passage{}, fmt.Errorf("%w: %s %d has no verses", ErrFetchFailed, slug, chapter)
	}

	verses := make([]state.Verse, len(resp.Text))
	for i, t := range resp.Text {
		verses[i] = state.Verse{N: strconv.Itoa(i + 1), T: t}
	}

	log.Debug().Str("book", slug).Int("chapter", chapter).Int("verses", len(verses)).Msg("fetched chapter")
	return Passage{Ref: fmt.Sprintf("%s %d", book, chapter), Verses: verses}, nil
}

// FetchVerses fetches verses from..to of a chapter, one request per verse.
// A from of zero fetches the whole chapter; a to below from fetches the
// single verse.
func (c *BibliaClient) FetchVerses(ctx context.Context, book string, chapter, from, to int) (Passage, error) {
	if from <= 0 {
		return c.FetchChapter(ctx, book, chapter)
	}
	if to < from {
		to = from
	}

	slug := Slug(book)
	verses := make([]state.Verse, 0, to-from+1)
	for v := from; v <= to; v++ {
		body, err := c.Get(ctx, fmt.Sprintf(VerseEndpoint, slug, chapter, v))
		if err != nil {
			return Passage{}, fmt.Errorf("%w: %s %d:%d: %v", ErrFetchFailed, slug, chapter, v, err)
		}

		var resp struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return Passage{}, fmt.Errorf("%w: decode verse: %v", ErrFetchFailed, err)
		}
		if resp.Text == "" {
			return Passage{}, fmt.Errorf("%w: no verse text for %s %d:%d", ErrFetchFailed, slug, chapter, v)
		}
		verses = append(verses, state.Verse{N: strconv.Itoa(v), T: resp.Text})
	}

	return Passage{Ref: Label(book, chapter, from, to), Verses: verses}, nil
}

// Label formats a reference as "Book C", "Book C:V" or "Book C:V-W".
func Label(book string, chapter, from, to int) string {
	switch {
	case from <= 0:
		return fmt.Sprintf("%s %d", book, chapter)
	case to > from:
		return fmt.Sprintf("%s %d:%d-%d", book, chapter, from, to)
	default:
		return fmt.Sprintf("%s %d:%d", book, chapter, from)
	}
}
