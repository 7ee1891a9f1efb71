// Package order reconciles layer draw order against a semantic rank table.
//
// A rank table maps layer identifiers to integer draw ranks: lower ranks are
// painted first (bottom), higher ranks last (top). Layers missing from the
// table resolve to Sentinel and keep their arrival order among themselves,
// so an unclassified layer still renders instead of being dropped.
//
// Sort is a pure function used once per style load. Live is the stateful
// handle that keeps an already-rendered layer stack consistent with the
// table, using only the engine's relative "insert before" primitive.
package order

import (
	"sort"

	"github.com/joeblew999/plat-basemap/internal/style"
)

// Sentinel is the rank of layers absent from the table.
const Sentinel = 999

// RankTable maps layer identifiers to draw ranks.
type RankTable map[string]int

// Rank resolves the draw rank of id.
func (t RankTable) Rank(id string) int {
	if r, ok := t[id]; ok {
		return r
	}
	return Sentinel
}

// Has reports whether id has an explicit rank.
func (t RankTable) Has(id string) bool {
	_, ok := t[id]
	return ok
}

// Clone returns an independent copy of the table.
func (t RankTable) Clone() RankTable {
	out := make(RankTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Merge returns a copy of t with the entries of over applied on top.
func (t RankTable) Merge(over RankTable) RankTable {
	out := t.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Sort returns a new slice holding the same layers ordered by ascending rank.
// The sort is stable, total, and never fails: empty input yields empty
// output and duplicate ids are ordered independently by input position.
func Sort(layers []style.Layer, ranks RankTable) []style.Layer {
	out := make([]style.Layer, len(layers))
	copy(out, layers)
	sort.SliceStable(out, func(i, j int) bool {
		return ranks.Rank(out[i].ID) < ranks.Rank(out[j].ID)
	})
	return out
}

// SortIDs is Sort over bare identifiers.
func SortIDs(ids []string, ranks RankTable) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		return ranks.Rank(out[i]) < ranks.Rank(out[j])
	})
	return out
}

// Reference picks the layer a new layer of the given rank must be inserted
// before. Scanning the live stack bottom-up, the anchor is the last layer
// whose rank is <= rank; the reference is the first layer above it, i.e. the
// first layer whose rank is strictly greater. An empty result means "append
// on top". Equal ranks keep arrival order, so the new layer lands after them.
func Reference(live []string, ranks RankTable, rank int) string {
	for _, id := range live {
		if ranks.Rank(id) > rank {
			return id
		}
	}
	return ""
}
