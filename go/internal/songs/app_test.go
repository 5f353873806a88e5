package songs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/altarpro/altarpro/go/internal/models"
)

type fakeRepo struct {
	songs    map[uuid.UUID]models.Song
	searched int
}

func (f *fakeRepo) GetSong(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	s, ok := f.songs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (f *fakeRepo) SearchSongs(ctx context.Context, orgID, text string, limit int) ([]models.Song, error) {
	f.searched++
	var out []models.Song
	for _, s := range f.songs {
		if s.OrgID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestGet(t *testing.T) {
	id := uuid.New()
	app := NewApp(&fakeRepo{songs: map[uuid.UUID]models.Song{id: {ID: id, Name: "Oceans"}}})

	got, err := app.Get(context.Background(), id.String())
	if err != nil || got.Name != "Oceans" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := app.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(bad id) = %v, want ErrNotFound", err)
	}
}

func TestSearchSkipsEmptyInput(t *testing.T) {
	repo := &fakeRepo{songs: map[uuid.UUID]models.Song{}}
	app := NewApp(repo)

	for _, tc := range []struct{ org, text string }{{"", "gracia"}, {"org-1", "   "}} {
		got, err := app.Search(context.Background(), tc.org, tc.text)
		if err != nil || got != nil {
			t.Errorf("Search(%q, %q) = %v, %v", tc.org, tc.text, got, err)
		}
	}
	if repo.searched != 0 {
		t.Errorf("repository queried %d times for empty input", repo.searched)
	}
}

func TestPresentable(t *testing.T) {
	lyrics := "Verso uno\n\nVerso dos"
	s := &models.Song{
		ID:               uuid.New(),
		Name:             "Sublime Gracia",
		Lyrics:           &lyrics,
		DefaultTextColor: "white",
		DefaultBlur:      false,
	}

	got := Presentable(s)
	if got.Lyrics != lyrics || got.URL != "" || got.Name != "Sublime Gracia" {
		t.Errorf("Presentable = %+v", got)
	}
	if got.DefaultBlur == nil || *got.DefaultBlur {
		t.Error("blur preference lost")
	}
	if got.ID != s.ID.String() {
		t.Errorf("ID = %q", got.ID)
	}
}
