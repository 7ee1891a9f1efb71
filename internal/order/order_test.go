package order

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-basemap/internal/style"
)

var exampleRanks = RankTable{"background": 0, "water": 40, "contours": 50, "labels": 100}

func layers(ids ...string) []style.Layer {
	out := make([]style.Layer, len(ids))
	for i, id := range ids {
		out[i] = style.Layer{ID: id, Type: "fill"}
	}
	return out
}

func ids(ls []style.Layer) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestSortExample(t *testing.T) {
	got := Sort(layers("labels", "water", "background", "contours"), exampleRanks)
	assert.Equal(t, []string{"background", "water", "contours", "labels"}, ids(got))
}

func TestSortUnrankedSinks(t *testing.T) {
	got := Sort(layers("fog", "water", "background"), exampleRanks)
	assert.Equal(t, []string{"background", "water", "fog"}, ids(got))

	got = Sort(layers("haze", "labels", "fog", "background"), exampleRanks)
	assert.Equal(t, []string{"background", "labels", "haze", "fog"}, ids(got))
}

func TestSortEdgeCases(t *testing.T) {
	assert.Empty(t, Sort(nil, exampleRanks))
	assert.Empty(t, Sort([]style.Layer{}, nil))

	got := Sort(layers("b", "a"), nil)
	assert.Equal(t, []string{"b", "a"}, ids(got))

	dup := []style.Layer{{ID: "water", Type: "fill"}, {ID: "background"}, {ID: "water", Type: "line"}}
	got = Sort(dup, exampleRanks)
	require.Len(t, got, 3)
	assert.Equal(t, "background", got[0].ID)
	assert.Equal(t, "fill", got[1].Type)
	assert.Equal(t, "line", got[2].Type)
}

func TestSortDoesNotMutateInput(t *testing.T) {
	in := layers("labels", "background")
	Sort(in, exampleRanks)
	assert.Equal(t, []string{"labels", "background"}, ids(in))
}

// randomLayers builds n layers with few distinct ranks, some unranked, and
// records each layer's input position in its metadata.
func randomLayers(rng *rand.Rand, n int) ([]style.Layer, RankTable) {
	ranks := RankTable{}
	out := make([]style.Layer, n)
	for i := range out {
		id := fmt.Sprintf("layer-%d", i)
		if rng.Intn(4) != 0 {
			ranks[id] = rng.Intn(6) * 10
		}
		out[i] = style.Layer{ID: id, Metadata: map[string]any{"index": i}}
	}
	return out, ranks
}

func TestSortStableProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		in, ranks := randomLayers(rng, rng.Intn(40))
		got := Sort(in, ranks)
		require.Len(t, got, len(in))

		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			pr, cr := ranks.Rank(prev.ID), ranks.Rank(cur.ID)
			require.LessOrEqual(t, pr, cr, "round %d: ranks out of order", round)
			if pr == cr {
				require.Less(t, prev.Metadata["index"].(int), cur.Metadata["index"].(int),
					"round %d: equal ranks reordered", round)
			}
		}
	}
}

func TestSortIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 100; round++ {
		in, ranks := randomLayers(rng, rng.Intn(30))
		once := Sort(in, ranks)
		assert.Equal(t, ids(once), ids(Sort(once, ranks)))
	}
}

func TestUnrankedAfterRanked(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 100; round++ {
		in, ranks := randomLayers(rng, 25)
		got := Sort(in, ranks)
		seenUnranked := false
		for _, l := range got {
			if !ranks.Has(l.ID) {
				seenUnranked = true
				continue
			}
			if seenUnranked {
				require.GreaterOrEqual(t, ranks[l.ID], Sentinel, "ranked layer %s after unranked band", l.ID)
			}
		}
	}
}

func TestReference(t *testing.T) {
	live := []string{"background", "water", "contours", "labels"}
	assert.Equal(t, "contours", Reference(live, exampleRanks, 45))
	assert.Equal(t, "contours", Reference(live, exampleRanks, 40))
	assert.Equal(t, "water", Reference(live, exampleRanks, 0))
	assert.Equal(t, "", Reference(live, exampleRanks, 100))
	assert.Equal(t, "", Reference(nil, exampleRanks, 5))
}

func TestRankTableHelpers(t *testing.T) {
	merged := exampleRanks.Merge(RankTable{"water": 45, "fog": 999})
	assert.Equal(t, 45, merged.Rank("water"))
	assert.Equal(t, 40, exampleRanks.Rank("water"))
	assert.True(t, merged.Has("fog"))
	assert.Equal(t, Sentinel, exampleRanks.Rank("fog"))
}

func TestDefaultsCatalogue(t *testing.T) {
	d := Defaults()
	got := SortIDs([]string{"placenames", "contours", "roads", "hillshade", "water", "background", "buildings_high_lod", "buildings_low_lod"}, d)
	assert.Equal(t, []string{"background", "water", "hillshade", "contours", "roads", "buildings_low_lod", "buildings_high_lod", "placenames"}, got)

	d["water"] = 1
	assert.Equal(t, 40, Defaults().Rank("water"))
}
