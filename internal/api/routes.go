// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-basemap/internal/convert"
	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/humastar"
	"github.com/joeblew999/plat-basemap/internal/order"
	"github.com/joeblew999/plat-basemap/internal/pmtiles"
	"github.com/joeblew999/plat-basemap/internal/service"
	"github.com/joeblew999/plat-basemap/internal/session"
	"github.com/joeblew999/plat-basemap/internal/style"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Session *service.SessionService
	Tile    *service.TileService
	Convert *service.ConvertService
}

// Types

type SessionInput struct {
	ID string `path:"id" doc:"Session ID" format:"uuid"`
}

type LayerInput struct {
	ID    string `path:"id" doc:"Session ID" format:"uuid"`
	Layer string `path:"layer" doc:"Layer ID" example:"water"`
}

// EnvInput captures the caller's environment from the request it came in
// on. PagePath is declared for the docs; env.FromRequest reads it.
type EnvInput struct {
	PagePath string `header:"X-Page-Path" doc:"Path of the page hosting the map, when it differs from the request path" example:"/basemap/index.html"`
	env      env.Input
}

func (i *EnvInput) Resolve(ctx huma.Context) []error {
	r, _ := humago.Unwrap(ctx)
	i.env = env.FromRequest(r)
	return nil
}

type SessionBody struct {
	service.SessionInfo
}

var sessionActions = []humastar.ActionDef{
	{Rel: "layers", Pattern: "/api/v1/sessions/%s/layers", Method: http.MethodGet, Title: "Live layers"},
	{Rel: "style", Pattern: "/api/v1/sessions/%s/style", Method: http.MethodGet, Title: "Composed style"},
	{Rel: "ranks", Pattern: "/api/v1/sessions/%s/ranks", Method: http.MethodPut, Title: "Update draw order ranks"},
	{Rel: "events", Pattern: "/api/v1/sessions/%s/events", Method: http.MethodGet, Title: "Change feed"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: http.MethodDelete, Title: "Destroy session"},
}

var dismissAction = humastar.ActionDef{
	Rel: "dismiss", Pattern: "/api/v1/sessions/%s/notice", Method: http.MethodDelete, Title: "Dismiss notice",
}

// Actions advertises what can be done with the session in its current state.
func (b SessionBody) Actions() []humastar.Action {
	defs := sessionActions
	if b.Notice != nil {
		defs = append(defs[:len(defs):len(defs)], dismissAction)
	}
	return humastar.ActionsFor(b.ID, defs...)
}

type SessionOutput struct {
	Body SessionBody
}

type LayersOutput struct {
	Body []session.LayerInfo
}

type StyleOutput struct {
	Body *style.Style
}

type InsertLayerBody struct {
	ID    string      `json:"id" required:"true" minLength:"1" doc:"New layer ID" example:"health_facilities"`
	Rank  int         `json:"rank" minimum:"0" doc:"Draw order rank" example:"92"`
	Layer style.Layer `json:"layer" doc:"Layer definition; the id field above wins over its id"`
}

type VisibilityBody struct {
	Visible bool `json:"visible" doc:"Whether the layer is drawn"`
}

type OrderBody struct {
	Rank int `json:"rank" minimum:"0" doc:"New draw order rank" example:"65"`
}

type RanksBody struct {
	Ranks order.RankTable `json:"ranks" doc:"Draw order ranks by layer ID; merged into the session table"`
}

type RanksOutput struct {
	Body RanksBody
}

type PropertyBody struct {
	Name  string `json:"name" required:"true" minLength:"1" doc:"Property name" example:"fill-color"`
	Value any    `json:"value" doc:"Property value or expression" example:"#88bbee"`
}

type NoticeOutput struct {
	Body *session.Notice
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type TileInput struct {
	Name string `path:"name" doc:"Archive name without extension" example:"roads"`
}

type TileJSONOutput struct {
	Body pmtiles.TileJSON
}

type ConvertBody struct {
	Converted []string          `json:"converted" doc:"Archives written as tile directories"`
	Failed    map[string]string `json:"failed,omitempty" doc:"Archives that failed, with the reason"`
	Rewritten int               `json:"rewritten" doc:"Style sources pointed at tile directories"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) RegisterStyle(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-style",
		Method:      http.MethodGet,
		Path:        "/style.json",
		Summary:     "Style composed for the caller's environment",
		Tags:        []string{"style"},
	}, h.GetStyle)
}

func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/style", h.GetSessionStyle, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/notice", h.GetNotice, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}/notice", h.DismissNotice, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/ranks", h.GetRanks, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/ranks", h.PutRanks, huma.OperationTags("layers"))
}

func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Register(api, huma.Operation{
		OperationID:   "insert-layer",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/layers",
		Summary:       "Insert layer at rank",
		Tags:          []string{"layers"},
		DefaultStatus: http.StatusCreated,
	}, h.InsertLayer)
	huma.Delete(api, "/api/v1/sessions/{id}/layers/{layer}", h.RemoveLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/visibility", h.PutVisibility, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/{layer}/toggle", h.ToggleVisibility, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/order", h.PutOrder, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/paint", h.PutPaint, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/sessions/{id}/layers/{layer}/layout", h.PutLayout, huma.OperationTags("layers"))
}

func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{name}/tilejson", h.GetTileJSON, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles/convert", h.ConvertTiles, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetStyle(ctx context.Context, input *EnvInput) (*StyleOutput, error) {
	doc, err := h.svc.Session.Compose(ctx, input.env)
	if err != nil {
		return nil, apiError(err)
	}
	return &StyleOutput{Body: doc}, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *EnvInput) (*SessionOutput, error) {
	info, err := h.svc.Session.Create(ctx, input.env)
	if err != nil {
		return nil, apiError(err)
	}
	return &SessionOutput{Body: SessionBody{info}}, nil
}

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body []service.SessionInfo }, error) {
	return &struct{ Body []service.SessionInfo }{Body: h.svc.Session.List()}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	info, err := h.svc.Session.Info(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &SessionOutput{Body: SessionBody{info}}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if err := h.svc.Session.Delete(input.ID); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}

func (h *APIHandler) GetSessionStyle(ctx context.Context, input *SessionInput) (*StyleOutput, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	doc, err := s.Style()
	if err != nil {
		return nil, apiError(err)
	}
	return &StyleOutput{Body: doc}, nil
}

func (h *APIHandler) GetNotice(ctx context.Context, input *SessionInput) (*NoticeOutput, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	n := s.Notice()
	if n == nil {
		return nil, huma.Error404NotFound("no active notice")
	}
	return &NoticeOutput{Body: n}, nil
}

func (h *APIHandler) DismissNotice(ctx context.Context, input *SessionInput) (*struct{}, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	s.DismissNotice()
	return nil, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *SessionInput) (*LayersOutput, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	layers, err := s.Layers()
	if err != nil {
		return nil, apiError(err)
	}
	return &LayersOutput{Body: layers}, nil
}

func (h *APIHandler) InsertLayer(ctx context.Context, input *struct {
	SessionInput
	Body InsertLayerBody
}) (*LayersOutput, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if err := s.InsertLayer(input.Body.ID, input.Body.Rank, input.Body.Layer); err != nil {
		return nil, apiError(err)
	}
	return h.GetLayers(ctx, &input.SessionInput)
}

func (h *APIHandler) RemoveLayer(ctx context.Context, input *LayerInput) (*struct{}, error) {
	return nil, h.mutate(input, func(s *session.Session) error { return s.RemoveLayer(input.Layer) })
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *struct {
	LayerInput
	Body VisibilityBody
}) (*struct{ Body VisibilityBody }, error) {
	err := h.mutate(&input.LayerInput, func(s *session.Session) error {
		return s.SetVisibility(input.Layer, input.Body.Visible)
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body VisibilityBody }{Body: input.Body}, nil
}

func (h *APIHandler) ToggleVisibility(ctx context.Context, input *LayerInput) (*struct{ Body VisibilityBody }, error) {
	var visible bool
	err := h.mutate(input, func(s *session.Session) (err error) {
		visible, err = s.ToggleVisibility(input.Layer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body VisibilityBody }{Body: VisibilityBody{Visible: visible}}, nil
}

func (h *APIHandler) PutOrder(ctx context.Context, input *struct {
	LayerInput
	Body OrderBody
}) (*LayersOutput, error) {
	err := h.mutate(&input.LayerInput, func(s *session.Session) error {
		return s.Reorder(input.Layer, input.Body.Rank)
	})
	if err != nil {
		return nil, err
	}
	return h.GetLayers(ctx, &SessionInput{ID: input.ID})
}

func (h *APIHandler) GetRanks(ctx context.Context, input *SessionInput) (*RanksOutput, error) {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	ranks, err := s.Ranks()
	if err != nil {
		return nil, apiError(err)
	}
	return &RanksOutput{Body: RanksBody{Ranks: ranks}}, nil
}

func (h *APIHandler) PutRanks(ctx context.Context, input *struct {
	SessionInput
	Body RanksBody
}) (*LayersOutput, error) {
	for id, r := range input.Body.Ranks {
		if r < 0 {
			return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("rank of %q must not be negative", id))
		}
	}
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if err := s.SetRanks(input.Body.Ranks); err != nil {
		return nil, apiError(err)
	}
	return h.GetLayers(ctx, &input.SessionInput)
}

func (h *APIHandler) PutPaint(ctx context.Context, input *struct {
	LayerInput
	Body PropertyBody
}) (*struct{ Body MessageBody }, error) {
	err := h.mutate(&input.LayerInput, func(s *session.Session) error {
		return s.SetPaint(input.Layer, input.Body.Name, input.Body.Value)
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Paint property set"}}, nil
}

func (h *APIHandler) PutLayout(ctx context.Context, input *struct {
	LayerInput
	Body PropertyBody
}) (*struct{ Body MessageBody }, error) {
	err := h.mutate(&input.LayerInput, func(s *session.Session) error {
		return s.SetLayout(input.Layer, input.Body.Name, input.Body.Value)
	})
	if err != nil {
		return nil, err
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layout property set"}}, nil
}

func (h *APIHandler) mutate(input *LayerInput, fn func(*session.Session) error) error {
	s, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return apiError(err)
	}
	if err := fn(s); err != nil {
		return apiError(err)
	}
	return nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing archives", err)
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

func (h *APIHandler) GetTileJSON(ctx context.Context, input *struct {
	TileInput
	EnvInput
}) (*TileJSONOutput, error) {
	if h.svc.Tile == nil {
		return nil, huma.Error404NotFound("no tiles configured")
	}
	base := h.svc.Session.Resolve(input.env).Origin + "/tiles/" + input.Name
	tj, err := h.svc.Tile.TileJSON(input.Name, base)
	if err != nil {
		return nil, apiError(err)
	}
	return &TileJSONOutput{Body: tj}, nil
}

func (h *APIHandler) ConvertTiles(ctx context.Context, input *struct {
	Body service.ConvertOptions
}) (*struct{ Body ConvertBody }, error) {
	if h.svc.Convert == nil {
		return nil, huma.Error503ServiceUnavailable("conversion not configured")
	}
	report, err := h.svc.Convert.Run(ctx, input.Body, nil)
	if err != nil {
		return nil, apiError(err)
	}
	body := ConvertBody{Converted: []string{}, Rewritten: report.Rewritten}
	for _, res := range report.Results {
		if res.Err != nil {
			if body.Failed == nil {
				body.Failed = map[string]string{}
			}
			body.Failed[res.Name] = res.Err.Error()
			continue
		}
		body.Converted = append(body.Converted, res.Name)
	}
	return &struct{ Body ConvertBody }{Body: body}, nil
}

// apiError maps domain errors to HTTP errors.
func apiError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrArchiveNotFound),
		errors.Is(err, order.ErrLayerNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, order.ErrLayerExists),
		errors.Is(err, session.ErrNotReady):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, session.ErrDestroyed):
		return huma.NewError(http.StatusGone, err.Error())
	case errors.Is(err, convert.ErrToolMissing),
		errors.Is(err, service.ErrTooManySessions):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
