// Package service holds the long-lived state behind the basemap API: the
// registry of live map sessions, the published tile archives and the event
// bus that fans session changes out to subscribers.
package service

import (
	"time"

	"github.com/joeblew999/plat-basemap/internal/env"
	"github.com/joeblew999/plat-basemap/internal/session"
)

// SessionInfo is the public view of a live session.
// Huma reads the tags for OpenAPI and validation.
type SessionInfo struct {
	ID         string             `json:"id" doc:"Session identifier" format:"uuid"`
	State      string             `json:"state" doc:"Lifecycle state" enum:"uninitialized,loading-style,style-ready,engine-constructed,interactive,error"`
	Created    time.Time          `json:"created" doc:"Creation time"`
	Used       time.Time          `json:"used" doc:"Last time a request touched the session"`
	Env        env.Classification `json:"env" doc:"Resolved environment"`
	Profile    string             `json:"profile" doc:"Interaction profile" enum:"touch,pointer"`
	Diagnostic string             `json:"diagnostic,omitempty" doc:"Why the fallback style is in use, if it is"`
	Notice     *session.Notice    `json:"notice,omitempty" doc:"Active error notice"`
	Layers     int                `json:"layers" doc:"Number of live layers"`
}

// TileFile describes a published archive.
type TileFile struct {
	Name     string    `json:"name" doc:"Archive name without extension" example:"roads"`
	File     string    `json:"file" doc:"Archive file name" example:"roads.pmtiles"`
	Size     string    `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	TileType string    `json:"tileType" doc:"Tile format extension" example:"pbf"`
	MinZoom  int       `json:"minZoom" doc:"Lowest zoom level"`
	MaxZoom  int       `json:"maxZoom" doc:"Highest zoom level"`
	Bounds   []float64 `json:"bounds" doc:"west, south, east, north"`
	Center   []float64 `json:"center" doc:"lon, lat"`
	Tiles    uint64    `json:"tiles" doc:"Addressed tile count"`
}
