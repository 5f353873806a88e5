package songs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altarpro/altarpro/go/internal/models"
	"github.com/altarpro/altarpro/go/internal/sqlutil"
)

var ErrNotFound = errors.New("song not found")

const songColumns = `
	id, org_id, name, url, lyrics, lyric_chunks, tags,
	default_text_color, default_blur, cover_image_url, youtube_thumbnail_url,
	created_at, updated_at`

// Repository reads the song catalog. It never writes.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool on dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+songColumns+` FROM songs WHERE id = $1`, id)
	song, err := scanSong(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	return song, nil
}

// SearchSongs matches name or any tag, case-insensitively, within an org.
func (r *Repository) SearchSongs(ctx context.Context, orgID, text string, limit int) ([]models.Song, error) {
	rows, err := r.pool.Query(ctx, `
	SELECT `+songColumns+`
	FROM songs
	WHERE org_id = $1
	  AND (name ILIKE $2 OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $2))
	ORDER BY name
	LIMIT $3`, orgID, sqlutil.LikePattern(text), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	defer rows.Close()

	var out []models.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		out = append(out, *song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	return out, nil
}

func scanSong(row pgx.Row) (*models.Song, error) {
	var (
		s                                 models.Song
		url, lyrics, textColor, cover, yt sql.NullString
		blur                              sql.NullBool
		chunks, tags                      []string
		createdAt, updatedAt              time.Time
	)
	err := row.Scan(
		&s.ID, &s.OrgID, &s.Name, &url, &lyrics, &chunks, &tags,
		&textColor, &blur, &cover, &yt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.URL = sqlutil.FromSqlStringPtr(url)
	s.Lyrics = sqlutil.FromSqlStringPtr(lyrics)
	s.LyricChunks = chunks
	s.Tags = tags
	s.DefaultTextColor = sqlutil.FromSqlString(textColor, "white")
	s.DefaultBlur = sqlutil.FromSqlBool(blur, true)
	s.CoverImageURL = sqlutil.FromSqlStringPtr(cover)
	s.YoutubeThumbnailURL = sqlutil.FromSqlStringPtr(yt)
	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt
	return &s, nil
}
