package biblia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1 Juan", "1-juan"},
		{"Éxodo", "exodo"},
		{"Cantar de los  Cantares", "cantar-de-los-cantares"},
		{" Génesis ", "genesis"},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLabel(t *testing.T) {
	cases := []struct {
		from, to int
		want     string
	}{
		{0, 0, "Salmos 23"},
		{16, 16, "Salmos 23:16"},
		{13, 14, "Salmos 23:13-14"},
	}
	for _, tc := range cases {
		if got := Label("Salmos", 23, tc.from, tc.to); got != tc.want {
			t.Errorf("Label(%d,%d) = %q, want %q", tc.from, tc.to, got, tc.want)
		}
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *BibliaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBibliaClient(srv.URL + "/api")
}

func TestFetchChapter(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/exodo/20" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"text":["Y habló Dios","Yo soy Jehová tu Dios"]}`))
	})

	p, err := client.FetchVerses(context.Background(), "Éxodo", 20, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Ref != "Éxodo 20" || len(p.Verses) != 2 || p.Verses[1].N != "2" {
		t.Fatalf("passage = %+v", p)
	}
}

func TestFetchVerseRange(t *testing.T) {
	var calls atomic.Int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/filipenses/4/13":
			w.Write([]byte(`{"text":"Todo lo puedo en Cristo que me fortalece."}`))
		case "/api/filipenses/4/14":
			w.Write([]byte(`{"text":"Sin embargo, bien hicisteis en participar conmigo en mi tribulación."}`))
		default:
			http.NotFound(w, r)
		}
	})

	p, err := client.FetchVerses(context.Background(), "Filipenses", 4, 13, 14)
	if err != nil {
		t.Fatal(err)
	}
	if p.Ref != "Filipenses 4:13-14" {
		t.Errorf("ref = %q", p.Ref)
	}
	if len(p.Verses) != 2 || p.Verses[0].N != "13" || p.Verses[1].N != "14" {
		t.Errorf("verses = %+v", p.Verses)
	}
	if calls.Load() != 2 {
		t.Errorf("made %d requests, want one per verse", calls.Load())
	}
}

func TestFetchFailures(t *testing.T) {
	notFound := func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }
	serverError := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	malformed := func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) }
	noText := func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) }

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", notFound},
		{"server error", serverError},
		{"malformed", malformed},
		{"no text", noText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newServer(t, tc.handler)
			_, err := client.FetchVerses(context.Background(), "Juan", 3, 16, 16)
			if !errors.Is(err, ErrFetchFailed) {
				t.Errorf("err = %v, want ErrFetchFailed", err)
			}
		})
	}
}
