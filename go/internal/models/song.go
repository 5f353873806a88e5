package models

import (
	"time"

	"github.com/google/uuid"
)

// Song is a catalog entry that can be presented as lyrics or video
type Song struct {
	ID                  uuid.UUID `json:"id"`
	OrgID               string    `json:"org_id"`
	Name                string    `json:"name"`
	URL                 *string   `json:"url,omitempty"`
	Lyrics              *string   `json:"lyrics,omitempty"`
	LyricChunks         []string  `json:"lyric_chunks,omitempty"`
	Tags                []string  `json:"tags"`
	DefaultTextColor    string    `json:"default_text_color"`
	DefaultBlur         bool      `json:"default_blur"`
	CoverImageURL       *string   `json:"cover_image_url,omitempty"`
	YoutubeThumbnailURL *string   `json:"youtube_thumbnail_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
