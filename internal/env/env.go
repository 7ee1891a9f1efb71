// Package env classifies the deployment context and device class of a map
// session. The classification is computed once and then treated as a value.
package env

import (
	"net"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// Input carries the raw facts a classification is derived from.
type Input struct {
	Scheme          string // "http" or "https"
	Host            string // host[:port] as seen by the client
	Path            string // page path, e.g. "/basemap/index.html"
	UserAgent       string
	MaxTouchPoints  int    // navigator.maxTouchPoints when known
	MobileHint      bool   // Sec-CH-UA-Mobile: ?1
	ForwardedPrefix string // X-Forwarded-Prefix from a reverse proxy
}

// Classification is the resolved environment of a session.
type Classification struct {
	Local         bool   `json:"local" doc:"Loopback host (dev server)"`
	SubpathHosted bool   `json:"subpathHosted" doc:"Served below a path prefix"`
	Prefix        string `json:"prefix,omitempty" doc:"Path prefix without slashes" example:"basemap"`
	Origin        string `json:"origin" doc:"Scheme and host of the page" example:"https://example.github.io"`
	PageDir       string `json:"pageDir" doc:"Directory of the page path, with trailing slash" example:"/basemap/"`
	Mobile        bool   `json:"mobile" doc:"Touch or mobile device"`
}

// Resolver turns an Input into a Classification.
type Resolver struct {
	// SubpathHosts are hostname suffixes that imply subpath hosting,
	// e.g. ".github.io".
	SubpathHosts []string
}

// DefaultSubpathHosts lists the hosting patterns recognised out of the box.
var DefaultSubpathHosts = []string{".github.io", ".gitlab.io"}

// NewResolver creates a resolver for the given hosting patterns.
func NewResolver(subpathHosts []string) *Resolver {
	if len(subpathHosts) == 0 {
		subpathHosts = DefaultSubpathHosts
	}
	return &Resolver{SubpathHosts: subpathHosts}
}

var mobileUA = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|mobile|blackberry|iemobile|opera mini`)

// Resolve classifies an input.
func (r *Resolver) Resolve(in Input) Classification {
	scheme := in.Scheme
	if scheme == "" {
		scheme = "http"
	}
	hostname := hostOnly(in.Host)

	c := Classification{
		Local:   isLoopback(hostname),
		Origin:  scheme + "://" + in.Host,
		PageDir: pageDir(in.Path),
		Mobile:  in.MaxTouchPoints > 0 || in.MobileHint || mobileUA.MatchString(in.UserAgent),
	}

	if prefix := strings.Trim(in.ForwardedPrefix, "/"); prefix != "" {
		c.SubpathHosted = true
		c.Prefix = prefix
		return c
	}
	if !c.Local && r.matchesSubpathHost(hostname) {
		c.SubpathHosted = true
		c.Prefix = firstSegment(in.Path)
	}
	return c
}

// FromRequest builds an Input from an HTTP request.
func FromRequest(req *http.Request) Input {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if p := req.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	host := req.Host
	if h := req.Header.Get("X-Forwarded-Host"); h != "" {
		host = h
	}
	pagePath := req.URL.Path
	if ref := req.Header.Get("X-Page-Path"); ref != "" {
		pagePath = ref
	}
	return Input{
		Scheme:          scheme,
		Host:            host,
		Path:            pagePath,
		UserAgent:       req.UserAgent(),
		MobileHint:      req.Header.Get("Sec-CH-UA-Mobile") == "?1",
		ForwardedPrefix: req.Header.Get("X-Forwarded-Prefix"),
	}
}

func (r *Resolver) matchesSubpathHost(hostname string) bool {
	for _, suffix := range r.SubpathHosts {
		if suffix != "" && strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}

func isLoopback(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "":
		return true
	}
	if strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// pageDir returns the directory part of a page path with a trailing slash.
func pageDir(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return "/"
	}
	return dir + "/"
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	seg, _, found := strings.Cut(p, "/")
	if !found {
		// "/repo" with no trailing slash is still the repo prefix unless it
		// names a file.
		if strings.Contains(seg, ".") {
			return ""
		}
	}
	return seg
}
