package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-basemap/internal/humastar"
)

// Events streams a session's changes to the viewer: the legend is
// re-rendered on layer events and the notice on engine errors.
func (h *LegendHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	// Subscribe before the stream opens so no change is missed.
	bus := h.sessions.Bus()
	ch := bus.Subscribe(input.ID)
	return h.Stream(func(sse humastar.SSE) {
		defer bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Kind == "state" && ev.Action == "destroyed" {
					sse.DispatchCustomEvent("session-changed", map[string]any{"kind": ev.Kind, "action": ev.Action})
					return
				}
				s, err := h.sessions.Get(input.ID)
				if err != nil {
					sse.Error(message(err))
					return
				}
				switch ev.Kind {
				case "layer":
					h.patchLegend(sse, input.ID, s)
				case "notice":
					h.patchNotice(sse, input.ID, s)
				}
				sse.DispatchCustomEvent("session-changed", map[string]any{
					"kind":    ev.Kind,
					"action":  ev.Action,
					"layer":   ev.LayerID,
					"message": ev.Message,
				})
			}
		}
	}), nil
}
