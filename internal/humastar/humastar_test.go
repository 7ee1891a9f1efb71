package humastar

import (
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"rank": 65, "extractor": "go", "visible": true, "zero": 0}`))
	require.NoError(t, err)
	assert.Equal(t, 65, s.Int("rank"))
	assert.Equal(t, "go", s.String("extractor"))
	assert.True(t, s.Bool("visible"))
	assert.True(t, s.Has("zero"))
	assert.False(t, s.Has("missing"))
	assert.Equal(t, "", s.String("rank"))

	in := SignalsInput{RawBody: []byte("{nope")}
	_, err = in.MustParse()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.GetStatus())
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("42",
		ActionDef{Rel: "dismiss", Pattern: "/api/v1/sessions/%s/notice", Method: http.MethodDelete, Title: "Dismiss notice"},
		ActionDef{Rel: "layers", Pattern: "/api/v1/sessions/%s/layers"},
	)
	require.Len(t, actions, 2)
	assert.Equal(t, `</api/v1/sessions/42/notice>; rel="dismiss"; method="DELETE"; title="Dismiss notice"`, actions[0].LinkHeader())
	assert.Equal(t, `</api/v1/sessions/42/layers>; rel="layers"`, actions[1].LinkHeader())
}
