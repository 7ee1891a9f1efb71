// Package templates renders the HTML fragments streamed to the viewer over
// Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html
var builtin embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict builds a map from key-value pairs for nested templates.
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// Default returns a renderer over the built-in fragments.
func Default() *Renderer {
	tmpl := template.Must(template.New("").Funcs(funcMap).ParseFS(builtin, "fragments/*.html"))
	return &Renderer{templates: tmpl}
}

// New creates a renderer from fragmentsDir/*.html. Fragments found there
// override the built-in ones of the same name.
func New(fragmentsDir string) (*Renderer, error) {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fragmentsDir string) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(builtin, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	return tmpl.ParseGlob(filepath.Join(fragmentsDir, "*.html"))
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-reads templates from disk (useful for dev hot-reload).
func (r *Renderer) Reload(fragmentsDir string) error {
	tmpl, err := parse(fragmentsDir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()
	return nil
}
