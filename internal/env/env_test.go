package env

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		name string
		in   Input
		want Classification
	}{
		{
			name: "local dev server",
			in:   Input{Host: "localhost:5173", Path: "/index.html"},
			want: Classification{Local: true, Origin: "http://localhost:5173", PageDir: "/"},
		},
		{
			name: "loopback ip",
			in:   Input{Host: "127.0.0.1:8086", Path: "/viewer"},
			want: Classification{Local: true, Origin: "http://127.0.0.1:8086", PageDir: "/"},
		},
		{
			name: "github pages subpath",
			in:   Input{Scheme: "https", Host: "acme.github.io", Path: "/basemap/index.html"},
			want: Classification{SubpathHosted: true, Prefix: "basemap", Origin: "https://acme.github.io", PageDir: "/basemap/"},
		},
		{
			name: "forwarded prefix",
			in:   Input{Scheme: "https", Host: "maps.example.org", Path: "/", ForwardedPrefix: "/viewer/"},
			want: Classification{SubpathHosted: true, Prefix: "viewer", Origin: "https://maps.example.org", PageDir: "/"},
		},
		{
			name: "production root",
			in:   Input{Scheme: "https", Host: "maps.example.org", Path: "/app/map.html"},
			want: Classification{Origin: "https://maps.example.org", PageDir: "/app/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in))
		})
	}
}

func TestResolveMobile(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		name string
		in   Input
		want bool
	}{
		{"iphone ua", Input{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"}, true},
		{"android ua", Input{UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8)"}, true},
		{"touch points", Input{UserAgent: "Mozilla/5.0 (Macintosh)", MaxTouchPoints: 5}, true},
		{"client hint", Input{MobileHint: true}, true},
		{"desktop", Input{UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in).Mobile)
		})
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "http://maps.example.org/style.json", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Prefix", "/basemap")
	req.Header.Set("X-Page-Path", "/basemap/index.html")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPad)")

	c := NewResolver(nil).Resolve(FromRequest(req))
	assert.Equal(t, "https://maps.example.org", c.Origin)
	assert.Equal(t, "basemap", c.Prefix)
	assert.Equal(t, "/basemap/", c.PageDir)
	assert.True(t, c.SubpathHosted)
	assert.True(t, c.Mobile)
}

func TestProfileFor(t *testing.T) {
	touch := ProfileFor(Classification{Mobile: true})
	assert.Equal(t, "touch", touch.Name())
	assert.False(t, touch.Interaction().DragRotate)
	assert.Zero(t, touch.Interaction().MaxPitch)

	pointer := ProfileFor(Classification{})
	assert.Equal(t, "pointer", pointer.Name())
	assert.True(t, pointer.Interaction().DragRotate)
	assert.Equal(t, 60.0, pointer.Interaction().MaxPitch)
}
