package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/clients/biblia"
	"github.com/altarpro/altarpro/go/internal/models"
	"github.com/altarpro/altarpro/go/internal/presentation/session"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
	"github.com/altarpro/altarpro/go/internal/songs"
)

const OperatorServiceName = "altarpro.operator.v1.OperatorService"

const (
	OperatorServiceGetStateProcedure       = "/" + OperatorServiceName + "/GetState"
	OperatorServiceUpdateSettingsProcedure = "/" + OperatorServiceName + "/UpdateSettings"
	OperatorServiceStepSettingProcedure    = "/" + OperatorServiceName + "/StepSetting"
	OperatorServiceResetSettingsProcedure  = "/" + OperatorServiceName + "/ResetSettings"
	OperatorServiceSetDeckProcedure        = "/" + OperatorServiceName + "/SetDeck"
	OperatorServiceClearDeckProcedure      = "/" + OperatorServiceName + "/ClearDeck"
	OperatorServiceNavigateProcedure       = "/" + OperatorServiceName + "/Navigate"
	OperatorServicePresentPassageProcedure = "/" + OperatorServiceName + "/PresentPassage"
	OperatorServicePresentSongProcedure    = "/" + OperatorServiceName + "/PresentSong"
)

// PassageFetcher loads Bible text.
type PassageFetcher interface {
	FetchVerses(ctx context.Context, book string, chapter, from, to int) (biblia.Passage, error)
}

// SongCatalog looks songs up by id.
type SongCatalog interface {
	Get(ctx context.Context, id string) (*models.Song, error)
}

type GetStateRequest struct{}

type UpdateSettingsRequest struct {
	Patch state.SettingsPatch `json:"patch"`
}

type StepSettingRequest struct {
	Key       string `json:"key"`
	Direction int    `json:"direction"`
}

type ResetSettingsRequest struct{}

type SettingsResponse struct {
	Settings state.Settings `json:"settings"`
}

type SetDeckRequest struct {
	Deck state.Deck `json:"deck"`
}

type ClearDeckRequest struct{}

// NavigateRequest moves the operator's slide. Action is next, previous,
// first, last or index; Index is only read for index.
type NavigateRequest struct {
	Action string `json:"action"`
	Index  int    `json:"index,omitempty"`
}

type NavigateResponse struct {
	Moved bool          `json:"moved"`
	State StateResponse `json:"state"`
}

// PresentPassageRequest names a chapter, or a verse range when From is set.
type PresentPassageRequest struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	From    int    `json:"from,omitempty"`
	To      int    `json:"to,omitempty"`
}

// PresentSongRequest presents a catalog song. Mode is auto (default),
// lyrics or video.
type PresentSongRequest struct {
	SongID string `json:"songId"`
	Mode   string `json:"mode,omitempty"`
}

type PresentResponse struct {
	Label string        `json:"label"`
	State StateResponse `json:"state"`
}

// OperatorService exposes the operator controls over connect.
type OperatorService struct {
	controller *session.Controller
	bible      PassageFetcher
	songs      SongCatalog
	resolver   BackgroundResolver
}

// NewOperatorService wires the controls to an operator controller. bible
// and catalog may be nil; the calls that need them then fail with
// Unimplemented.
func NewOperatorService(controller *session.Controller, bible PassageFetcher, catalog SongCatalog, resolver BackgroundResolver) *OperatorService {
	return &OperatorService{
		controller: controller,
		bible:      bible,
		songs:      catalog,
		resolver:   resolver,
	}
}

// NewOperatorServiceHandler builds the HTTP handler for every procedure and
// returns the path prefix to mount it on.
func NewOperatorServiceHandler(svc *OperatorService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(OperatorServiceGetStateProcedure, connect.NewUnaryHandler(OperatorServiceGetStateProcedure, svc.GetState, opts...))
	mux.Handle(OperatorServiceUpdateSettingsProcedure, connect.NewUnaryHandler(OperatorServiceUpdateSettingsProcedure, svc.UpdateSettings, opts...))
	mux.Handle(OperatorServiceStepSettingProcedure, connect.NewUnaryHandler(OperatorServiceStepSettingProcedure, svc.StepSetting, opts...))
	mux.Handle(OperatorServiceResetSettingsProcedure, connect.NewUnaryHandler(OperatorServiceResetSettingsProcedure, svc.ResetSettings, opts...))
	mux.Handle(OperatorServiceSetDeckProcedure, connect.NewUnaryHandler(OperatorServiceSetDeckProcedure, svc.SetDeck, opts...))
	mux.Handle(OperatorServiceClearDeckProcedure, connect.NewUnaryHandler(OperatorServiceClearDeckProcedure, svc.ClearDeck, opts...))
	mux.Handle(OperatorServiceNavigateProcedure, connect.NewUnaryHandler(OperatorServiceNavigateProcedure, svc.Navigate, opts...))
	mux.Handle(OperatorServicePresentPassageProcedure, connect.NewUnaryHandler(OperatorServicePresentPassageProcedure, svc.PresentPassage, opts...))
	mux.Handle(OperatorServicePresentSongProcedure, connect.NewUnaryHandler(OperatorServicePresentSongProcedure, svc.PresentSong, opts...))
	return "/" + OperatorServiceName + "/", mux
}

func (s *OperatorService) state(ctx context.Context) StateResponse {
	return NewStateResponse(ctx, s.controller.Snapshot(), s.resolver)
}

func (s *OperatorService) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[StateResponse], error) {
	resp := s.state(ctx)
	return connect.NewResponse(&resp), nil
}

func (s *OperatorService) UpdateSettings(ctx context.Context, req *connect.Request[UpdateSettingsRequest]) (*connect.Response[SettingsResponse], error) {
	if len(req.Msg.Patch) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("patch is required"))
	}
	settings, err := s.controller.UpdateSettings(ctx, req.Msg.Patch)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: settings.Display()}), nil
}

func (s *OperatorService) StepSetting(ctx context.Context, req *connect.Request[StepSettingRequest]) (*connect.Response[SettingsResponse], error) {
	if req.Msg.Direction != 1 && req.Msg.Direction != -1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("direction must be 1 or -1, got %d", req.Msg.Direction))
	}
	settings, err := s.controller.StepSetting(ctx, req.Msg.Key, req.Msg.Direction)
	if err != nil {
		if errors.Is(err, session.ErrNotOperator) {
			return nil, toConnectError(err)
		}
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: settings.Display()}), nil
}

func (s *OperatorService) ResetSettings(ctx context.Context, req *connect.Request[ResetSettingsRequest]) (*connect.Response[SettingsResponse], error) {
	settings, err := s.controller.ResetSettings(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SettingsResponse{Settings: settings.Display()}), nil
}

func (s *OperatorService) SetDeck(ctx context.Context, req *connect.Request[SetDeckRequest]) (*connect.Response[StateResponse], error) {
	if err := s.controller.SetDeck(ctx, req.Msg.Deck); err != nil {
		return nil, toConnectError(err)
	}
	resp := s.state(ctx)
	return connect.NewResponse(&resp), nil
}

func (s *OperatorService) ClearDeck(ctx context.Context, req *connect.Request[ClearDeckRequest]) (*connect.Response[StateResponse], error) {
	if err := s.controller.ClearDeck(ctx); err != nil {
		return nil, toConnectError(err)
	}
	resp := s.state(ctx)
	return connect.NewResponse(&resp), nil
}

func (s *OperatorService) Navigate(ctx context.Context, req *connect.Request[NavigateRequest]) (*connect.Response[NavigateResponse], error) {
	var (
		moved bool
		err   error
	)
	switch strings.ToLower(req.Msg.Action) {
	case "next":
		moved, err = s.controller.Next(ctx)
	case "previous", "prev":
		moved, err = s.controller.Previous(ctx)
	case "first":
		moved, err = s.controller.First(ctx)
	case "last":
		moved, err = s.controller.Last(ctx)
	case "index":
		moved, err = s.controller.Goto(ctx, req.Msg.Index)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown navigation action %q", req.Msg.Action))
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&NavigateResponse{Moved: moved, State: s.state(ctx)}), nil
}

func (s *OperatorService) PresentPassage(ctx context.Context, req *connect.Request[PresentPassageRequest]) (*connect.Response[PresentResponse], error) {
	if s.bible == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("bible service not configured"))
	}
	if strings.TrimSpace(req.Msg.Book) == "" || req.Msg.Chapter <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("book and chapter are required"))
	}

	passage, err := s.bible.FetchVerses(ctx, req.Msg.Book, req.Msg.Chapter, req.Msg.From, req.Msg.To)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.controller.PresentBible(ctx, passage.Ref, passage.Verses); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PresentResponse{Label: passage.Ref, State: s.state(ctx)}), nil
}

func (s *OperatorService) PresentSong(ctx context.Context, req *connect.Request[PresentSongRequest]) (*connect.Response[PresentResponse], error) {
	if s.songs == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("song catalog not configured"))
	}

	song, err := s.songs.Get(ctx, req.Msg.SongID)
	if err != nil {
		return nil, toConnectError(err)
	}
	presentable := songs.Presentable(song)

	switch strings.ToLower(req.Msg.Mode) {
	case "", "auto":
		err = s.controller.PresentSongAuto(ctx, presentable)
	case "lyrics":
		err = s.controller.PresentSongLyrics(ctx, presentable)
	case "video":
		err = s.controller.PresentSongVideo(ctx, presentable)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown song mode %q", req.Msg.Mode))
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PresentResponse{Label: song.Name, State: s.state(ctx)}), nil
}

func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, session.ErrNotOperator):
		code = connect.CodePermissionDenied
	case errors.Is(err, session.ErrNothingToPresent):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, songs.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, biblia.ErrFetchFailed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
		log.Error().Err(err).Msg("operator request failed")
	}
	return connect.NewError(code, err)
}
