package pmtiles

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	cases := []struct {
		z    uint8
		x, y uint32
		id   uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, c := range cases {
		assert.Equal(t, c.id, ZxyToID(c.z, c.x, c.y), "%d/%d/%d", c.z, c.x, c.y)
		z, x, y := IDToZxy(c.id)
		assert.Equal(t, []uint32{uint32(c.z), c.x, c.y}, []uint32{uint32(z), x, y})
	}
}

func TestTileIDRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		z := uint8(rng.Intn(20))
		n := uint32(1) << z
		x, y := uint32(rng.Int63n(int64(n))), uint32(rng.Int63n(int64(n)))
		tile := maptile.New(x, y, maptile.Zoom(z))
		assert.Equal(t, tile, IDToTile(TileID(tile)))
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		RootOffset: 127, RootLength: 20, TileType: Mvt, TileCompression: Gzip,
		InternalCompression: Gzip, MinZoom: 2, MaxZoom: 14, CenterZoom: 6, Clustered: true,
	}
	h.SetBound(orb.Bound{Min: orb.Point{12.2, -13.5}, Max: orb.Point{31.3, 5.4}})
	data, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, HeaderLen)

	var got Header
	require.NoError(t, got.UnmarshalBinary(data))
	got.SpecVersion = 0
	assert.Equal(t, h, got)
	assert.InDelta(t, -13.5, got.Bound().Min.Lat(), 1e-6)

	assert.ErrorIs(t, got.UnmarshalBinary(make([]byte, 10)), ErrNotArchive)
	assert.ErrorIs(t, got.UnmarshalBinary(append([]byte("PM\x02"), make([]byte, 200)...)), ErrNotArchive)
}

func TestDirectoryRoundTrip(t *testing.T) {
	entries := []Entry{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 1, Offset: 10, Length: 5, RunLength: 3},
		{TileID: 9, Offset: 100, Length: 7, RunLength: 0},
	}
	for _, c := range []Compression{NoCompression, Gzip} {
		data, err := MarshalEntries(entries, c)
		require.NoError(t, err)
		got, err := UnmarshalEntries(data, c)
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	}
}

func TestFindTile(t *testing.T) {
	entries := []Entry{
		{TileID: 5, RunLength: 1},
		{TileID: 10, RunLength: 3},
		{TileID: 20, RunLength: 0},
	}
	_, ok := FindTile(entries, 4)
	assert.False(t, ok)
	e, ok := FindTile(entries, 12)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), e.TileID)
	_, ok = FindTile(entries, 13)
	assert.False(t, ok)
	e, ok = FindTile(entries, 400)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), e.RunLength)
}

func writeArchive(t *testing.T, tiles []Tile) []byte {
	t.Helper()
	var buf bytes.Buffer
	h := Header{TileType: Mvt, TileCompression: Gzip, MinZoom: 0, MaxZoom: 1}
	_, err := Write(&buf, h, map[string]any{"name": "water", "vector_layers": []any{}}, tiles)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReaderWriter(t *testing.T) {
	same := []byte("ocean")
	tiles := []Tile{
		{Z: 1, X: 1, Y: 0, Data: []byte("east")},
		{Z: 0, X: 0, Y: 0, Data: []byte("world")},
		{Z: 1, X: 0, Y: 0, Data: same},
		{Z: 1, X: 0, Y: 1, Data: same},
	}
	r, err := NewReader(bytes.NewReader(writeArchive(t, tiles)))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), r.Header().AddressedTilesCount)
	assert.Equal(t, uint64(3), r.Header().TileEntriesCount)

	data, ok, err := r.Tile(1, 0, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ocean", string(data))

	_, ok, err = r.Tile(1, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	md, err := r.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "water", md["name"])

	seen := map[maptile.Tile]string{}
	require.NoError(t, r.Walk(func(z uint8, x, y uint32, data []byte) error {
		seen[maptile.New(x, y, maptile.Zoom(z))] = string(data)
		return nil
	}))
	assert.Len(t, seen, 4)
	assert.Equal(t, "east", seen[maptile.New(1, 0, 1)])
}

func TestWriteRejectsDuplicates(t *testing.T) {
	_, err := Write(&bytes.Buffer{}, Header{}, nil, []Tile{{Z: 1}, {Z: 1}})
	assert.Error(t, err)
}

func TestOpenAndTileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "water.pmtiles")
	require.NoError(t, os.WriteFile(path, writeArchive(t, []Tile{{Z: 0, Data: []byte("x")}}), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	md, err := r.Metadata()
	require.NoError(t, err)
	tj := NewTileJSON(r.Header(), md, "https://example.com/tiles/water/")
	assert.Equal(t, []string{"https://example.com/tiles/water/{z}/{x}/{y}.pbf"}, tj.Tiles)
	assert.Equal(t, "water", tj.Name)
	assert.Equal(t, uint8(1), tj.MaxZoom)
}
