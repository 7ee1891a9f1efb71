// Package editor contains the Datastar SSE handlers behind the viewer's
// legend: layer toggles, reorders, the error notice and the live event feed.
package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-basemap/internal/humastar"
	"github.com/joeblew999/plat-basemap/internal/order"
	"github.com/joeblew999/plat-basemap/internal/service"
	"github.com/joeblew999/plat-basemap/internal/session"
	"github.com/joeblew999/plat-basemap/internal/style"
	"github.com/joeblew999/plat-basemap/internal/templates"
)

// LegendHandler streams the layer legend of a session.
type LegendHandler struct {
	humastar.Handler
	sessions *service.SessionService
}

// NewLegendHandler creates a legend handler.
func NewLegendHandler(sessions *service.SessionService, renderer *templates.Renderer) *LegendHandler {
	return &LegendHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		sessions: sessions,
	}
}

func (h *LegendHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/sessions/{id}/legend", h.Legend, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{id}/layers/{layer}/toggle", h.Toggle, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/sessions/{id}/layers/{layer}/order", h.Reorder, huma.OperationTags("editor"))
	huma.Delete(api, "/api/v1/editor/sessions/{id}/notice", h.Dismiss, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/sessions/{id}/events", h.Events, huma.OperationTags("editor"))
}

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type LayerInput struct {
	ID    string `path:"id" doc:"Session ID"`
	Layer string `path:"layer" doc:"Layer ID"`
}

// LegendItem is the data behind one legend row.
type LegendItem struct {
	session.LayerInfo
	Session string
	Swatch  string
}

func (h *LegendHandler) session(id string) (*session.Session, error) {
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return s, nil
}

func (h *LegendHandler) Legend(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		h.patchLegend(sse, input.ID, s)
		h.patchNotice(sse, input.ID, s)
	}), nil
}

func (h *LegendHandler) Toggle(ctx context.Context, input *LayerInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		visible, err := s.ToggleVisibility(input.Layer)
		if err != nil {
			sse.Error(message(err))
			return
		}
		h.patchLegend(sse, input.ID, s)
		sse.DispatchCustomEvent("layer-changed", map[string]any{
			"action": "visibility", "id": input.Layer, "visible": visible,
		})
	}), nil
}

type ReorderInput struct {
	LayerInput
	humastar.SignalsInput
}

// Reorder reads the new rank from the "rank" signal.
func (h *LegendHandler) Reorder(ctx context.Context, input *ReorderInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if !signals.Has("rank") {
		return nil, huma.Error400BadRequest("rank is required")
	}
	rank := signals.Int("rank")
	if rank < 0 {
		return nil, huma.Error400BadRequest("rank must not be negative")
	}
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		if err := s.Reorder(input.Layer, rank); err != nil {
			sse.Error(message(err))
			return
		}
		h.patchLegend(sse, input.ID, s)
		sse.Success(fmt.Sprintf("Moved %s to rank %d", input.Layer, rank))
	}), nil
}

func (h *LegendHandler) Dismiss(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		s.DismissNotice()
		sse.RemoveElementByID("notice")
	}), nil
}

func (h *LegendHandler) patchLegend(sse humastar.SSE, id string, s *session.Session) {
	layers, err := s.Layers()
	if err != nil {
		sse.Error(message(err))
		return
	}
	doc, _ := s.Style()
	items := make([]any, 0, len(layers))
	// Top of the stack first, the way a legend reads.
	for i := len(layers) - 1; i >= 0; i-- {
		items = append(items, LegendItem{LayerInfo: layers[i], Session: id, Swatch: swatch(doc, layers[i].ID)})
	}
	sse.Patch(h.RenderList("legend-item", items, "No layers", "The style has no layers yet"), "#legend")
}

func (h *LegendHandler) patchNotice(sse humastar.SSE, id string, s *session.Session) {
	n := s.Notice()
	if n == nil {
		sse.RemoveElementByID("notice")
		return
	}
	html, err := h.Renderer.Render("notice", map[string]any{"Message": n.Message, "Session": id})
	if err != nil {
		sse.Error(err.Error())
		return
	}
	sse.Patch(html, "#notices")
}

// swatch picks the colour a legend row shows for a layer.
func swatch(doc *style.Style, id string) string {
	if doc == nil {
		return ""
	}
	l, ok := doc.Layer(id)
	if !ok {
		return ""
	}
	for _, prop := range []string{"fill-color", "line-color", "circle-color", "background-color", "text-color"} {
		if c, ok := l.Paint[prop].(string); ok {
			return c
		}
	}
	return ""
}

func message(err error) string {
	switch {
	case errors.Is(err, order.ErrLayerNotFound):
		return "That layer is not on the map"
	case errors.Is(err, session.ErrDestroyed):
		return "This map has been closed"
	case errors.Is(err, session.ErrNotReady):
		return "The map is still loading"
	}
	return err.Error()
}
