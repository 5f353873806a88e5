// Package songs serves the read-only song catalog used by the operator.
package songs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/altarpro/altarpro/go/internal/models"
	"github.com/altarpro/altarpro/go/internal/presentation/session"
)

const defaultSearchLimit = 50

// SongRepository defines what the app layer needs from the repository
type SongRepository interface {
	GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error)
	SearchSongs(ctx context.Context, orgID, text string, limit int) ([]models.Song, error)
}

// App handles song lookups
type App struct {
	repo SongRepository
}

func NewApp(repo SongRepository) *App {
	return &App{repo: repo}
}

// Get fetches one song by id.
func (a *App) Get(ctx context.Context, id string) (*models.Song, error) {
	songID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	return a.repo.GetSong(ctx, songID)
}

// Search returns songs of an org whose name or tags contain text. Empty
// inputs return no results rather than the whole catalog.
func (a *App) Search(ctx context.Context, orgID, text string) ([]models.Song, error) {
	text = strings.TrimSpace(text)
	if orgID == "" || text == "" {
		return nil, nil
	}
	return a.repo.SearchSongs(ctx, orgID, text, defaultSearchLimit)
}

// Presentable converts a catalog entry into what a session presents.
func Presentable(s *models.Song) session.Song {
	out := session.Song{
		ID:               s.ID.String(),
		Name:             s.Name,
		LyricChunks:      s.LyricChunks,
		DefaultTextColor: s.DefaultTextColor,
		DefaultBlur:      &s.DefaultBlur,
	}
	if s.Lyrics != nil {
		out.Lyrics = *s.Lyrics
	}
	if s.URL != nil {
		out.URL = *s.URL
	}
	return out
}
