package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/altarpro/altarpro/go/clients/biblia"
	"github.com/altarpro/altarpro/go/internal/models"
	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/session"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
	"github.com/altarpro/altarpro/go/internal/presentation/storage"
	"github.com/altarpro/altarpro/go/internal/songs"
)

type fakeBible struct{}

func (fakeBible) FetchVerses(ctx context.Context, book string, chapter, from, to int) (biblia.Passage, error) {
	if book != "Salmos" {
		return biblia.Passage{}, fmt.Errorf("%w: %s", biblia.ErrFetchFailed, book)
	}
	var verses []state.Verse
	for v := from; v <= to; v++ {
		verses = append(verses, state.Verse{N: fmt.Sprint(v), T: fmt.Sprintf("salmo %d:%d", chapter, v)})
	}
	return biblia.Passage{Ref: biblia.Label(book, chapter, from, to), Verses: verses}, nil
}

type fakeCatalog map[string]*models.Song

func (f fakeCatalog) Get(ctx context.Context, id string) (*models.Song, error) {
	if s, ok := f[id]; ok {
		return s, nil
	}
	return nil, songs.ErrNotFound
}

type fakeResolver struct{}

func (fakeResolver) ResolveOrEmpty(ctx context.Context, ref *string) string {
	if ref == nil {
		return ""
	}
	return "https://signed.example/" + *ref
}

func newOperator(t *testing.T, role session.Role) *session.Controller {
	t.Helper()
	c, err := session.New(role, state.NewStore(storage.NewMemory()), broadcast.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func serveOperator(t *testing.T, svc *OperatorService) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewOperatorServiceHandler(svc))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call[Req, Res any](t *testing.T, srv *httptest.Server, procedure string, req *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, connect.WithCodec(jsonCodec{}))
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestPresentPassageAndNavigate(t *testing.T) {
	operator := newOperator(t, session.RoleOperator)
	srv := serveOperator(t, NewOperatorService(operator, fakeBible{}, nil, nil))

	presented, err := call[PresentPassageRequest, PresentResponse](t, srv, OperatorServicePresentPassageProcedure,
		&PresentPassageRequest{Book: "Salmos", Chapter: 23, From: 1, To: 3})
	if err != nil {
		t.Fatal(err)
	}
	if presented.Label != "Salmos 23:1-3" || presented.State.Total != 3 || presented.State.Phase != state.PhasePresenting {
		t.Fatalf("present = %+v", presented)
	}

	steps := []struct {
		action    string
		index     int
		wantMoved bool
		wantIndex int
	}{
		{"next", 0, true, 1},
		{"last", 0, true, 2},
		{"next", 0, false, 2},
		{"first", 0, true, 0},
		{"previous", 0, false, 0},
		{"index", 9, true, 2},
	}
	for _, step := range steps {
		got, err := call[NavigateRequest, NavigateResponse](t, srv, OperatorServiceNavigateProcedure,
			&NavigateRequest{Action: step.action, Index: step.index})
		if err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
		if got.Moved != step.wantMoved || got.State.Index != step.wantIndex {
			t.Errorf("%s: moved=%v index=%d, want moved=%v index=%d",
				step.action, got.Moved, got.State.Index, step.wantMoved, step.wantIndex)
		}
	}
}

func TestOperatorErrorCodes(t *testing.T) {
	id := uuid.New().String()
	catalog := fakeCatalog{id: {Name: "Silencio"}}
	srv := serveOperator(t, NewOperatorService(newOperator(t, session.RoleOperator), fakeBible{}, catalog, nil))

	_, err := call[NavigateRequest, NavigateResponse](t, srv, OperatorServiceNavigateProcedure, &NavigateRequest{Action: "sideways"})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("bad action: %v", err)
	}

	_, err = call[PresentPassageRequest, PresentResponse](t, srv, OperatorServicePresentPassageProcedure,
		&PresentPassageRequest{Book: "Hechos", Chapter: 2})
	if connect.CodeOf(err) != connect.CodeUnavailable {
		t.Errorf("bible failure: %v", err)
	}

	_, err = call[PresentSongRequest, PresentResponse](t, srv, OperatorServicePresentSongProcedure,
		&PresentSongRequest{SongID: uuid.New().String()})
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("missing song: %v", err)
	}

	_, err = call[PresentSongRequest, PresentResponse](t, srv, OperatorServicePresentSongProcedure,
		&PresentSongRequest{SongID: id})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("song without lyrics or video: %v", err)
	}

	_, err = call[SetDeckRequest, StateResponse](t, srv, OperatorServiceSetDeckProcedure,
		&SetDeckRequest{Deck: state.Deck{state.SongLyricsItem{SongID: id, Name: "Silencio"}}})
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("lyrics deck without chunks: %v", err)
	}

	_, err = call[StepSettingRequest, SettingsResponse](t, srv, OperatorServiceStepSettingProcedure,
		&StepSettingRequest{Key: "showRef", Direction: 1})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("step non-numeric: %v", err)
	}
}

func TestPresenterCannotOperate(t *testing.T) {
	srv := serveOperator(t, NewOperatorService(newOperator(t, session.RolePresenter), nil, nil, nil))

	_, err := call[ClearDeckRequest, StateResponse](t, srv, OperatorServiceClearDeckProcedure, &ClearDeckRequest{})
	if connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("presenter ClearDeck: %v", err)
	}

	_, err = call[PresentPassageRequest, PresentResponse](t, srv, OperatorServicePresentPassageProcedure,
		&PresentPassageRequest{Book: "Salmos", Chapter: 1})
	if connect.CodeOf(err) != connect.CodeUnimplemented {
		t.Errorf("no bible configured: %v", err)
	}
}

func TestPresentSongModes(t *testing.T) {
	lyrics := "Primera estrofa\n\nSegunda estrofa"
	url := "https://videos.example/himno.mp4"
	id := uuid.New()
	catalog := fakeCatalog{id.String(): {ID: id, Name: "Himno", Lyrics: &lyrics, URL: &url, DefaultBlur: true}}
	srv := serveOperator(t, NewOperatorService(newOperator(t, session.RoleOperator), nil, catalog, nil))

	cases := []struct {
		mode      string
		wantKind  state.ItemKind
		wantTotal int
	}{
		{"", state.KindSongLyrics, 2},
		{"video", state.KindSongVideo, 1},
		{"lyrics", state.KindSongLyrics, 2},
	}
	for _, tc := range cases {
		got, err := call[PresentSongRequest, PresentResponse](t, srv, OperatorServicePresentSongProcedure,
			&PresentSongRequest{SongID: id.String(), Mode: tc.mode})
		if err != nil {
			t.Fatalf("mode %q: %v", tc.mode, err)
		}
		if got.State.Slide == nil || got.State.Slide.Kind != tc.wantKind || got.State.Total != tc.wantTotal {
			t.Errorf("mode %q: state = %+v", tc.mode, got.State)
		}
	}

	_, err := call[PresentSongRequest, PresentResponse](t, srv, OperatorServicePresentSongProcedure,
		&PresentSongRequest{SongID: id.String(), Mode: "karaoke"})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("unknown mode: %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := serveOperator(t, NewOperatorService(newOperator(t, session.RoleOperator), nil, nil, nil))

	patch := state.SettingsPatch{"fontRem": json.RawMessage(`3.5`), "customKey": json.RawMessage(`"x"`)}
	got, err := call[UpdateSettingsRequest, SettingsResponse](t, srv, OperatorServiceUpdateSettingsProcedure,
		&UpdateSettingsRequest{Patch: patch})
	if err != nil {
		t.Fatal(err)
	}
	if got.Settings.FontRem != 3.5 || len(got.Settings.Extra) != 0 {
		t.Errorf("settings = %+v", got.Settings)
	}

	stepped, err := call[StepSettingRequest, SettingsResponse](t, srv, OperatorServiceStepSettingProcedure,
		&StepSettingRequest{Key: "versesPerSlide", Direction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if stepped.Settings.VersesPerSlide != 2 {
		t.Errorf("versesPerSlide = %d", stepped.Settings.VersesPerSlide)
	}

	reset, err := call[ResetSettingsRequest, SettingsResponse](t, srv, OperatorServiceResetSettingsProcedure, &ResetSettingsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if reset.Settings.FontRem != state.DefaultSettings().FontRem {
		t.Errorf("reset fontRem = %v", reset.Settings.FontRem)
	}
}

func TestStateEndpoint(t *testing.T) {
	operator := newOperator(t, session.RoleOperator)
	ctx := context.Background()
	if err := operator.PresentBible(ctx, "Juan 3:16", []state.Verse{{N: "16", T: "Porque de tal manera amó Dios al mundo"}}); err != nil {
		t.Fatal(err)
	}
	bg, err := state.PatchOf("backgroundUrl", "s3://fondos/cruz.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := operator.UpdateSettings(ctx, bg); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	NewStateHandler(operator, fakeResolver{}).RegisterStateRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/presentation/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Phase != state.PhasePresenting || got.Total != 1 || got.Slide == nil || got.Slide.Label != "Juan 3:16" {
		t.Errorf("state = %+v", got)
	}
	if got.ResolvedBackgroundURL != "https://signed.example/s3://fondos/cruz.jpg" {
		t.Errorf("background = %q", got.ResolvedBackgroundURL)
	}

	post, err := http.Post(srv.URL+"/api/presentation/state", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", post.StatusCode)
	}
}

func TestToConnectErrorDefaultsToInternal(t *testing.T) {
	err := toConnectError(errors.New("disk on fire"))
	if connect.CodeOf(err) != connect.CodeInternal {
		t.Errorf("code = %v", connect.CodeOf(err))
	}
}
