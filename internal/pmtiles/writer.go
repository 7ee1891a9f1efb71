package pmtiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Tile is one tile handed to Write.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// Write encodes a clustered archive with a single root directory. Tiles are
// compressed with h.TileCompression; consecutive ids with identical
// contents share one run. Offsets, lengths and counts in h are filled in.
func Write(w io.Writer, h Header, metadata map[string]any, tiles []Tile) (Header, error) {
	sorted := make([]Tile, len(tiles))
	copy(sorted, tiles)
	sort.Slice(sorted, func(i, j int) bool {
		return ZxyToID(sorted[i].Z, sorted[i].X, sorted[i].Y) < ZxyToID(sorted[j].Z, sorted[j].X, sorted[j].Y)
	})
	if h.InternalCompression == UnknownCompression {
		h.InternalCompression = Gzip
	}
	if h.TileCompression == UnknownCompression {
		h.TileCompression = NoCompression
	}

	var data bytes.Buffer
	var entries []Entry
	var prev []byte
	var prevID uint64
	for i, t := range sorted {
		id := ZxyToID(t.Z, t.X, t.Y)
		if i > 0 && id == prevID {
			return h, fmt.Errorf("pmtiles: duplicate tile %d/%d/%d", t.Z, t.X, t.Y)
		}
		prevID = id
		if n := len(entries); n > 0 {
			last := &entries[n-1]
			if id == last.TileID+uint64(last.RunLength) && bytes.Equal(t.Data, prev) {
				last.RunLength++
				continue
			}
		}
		packed, err := compress(t.Data, h.TileCompression)
		if err != nil {
			return h, err
		}
		entries = append(entries, Entry{TileID: id, Offset: uint64(data.Len()), Length: uint32(len(packed)), RunLength: 1})
		data.Write(packed)
		prev = t.Data
	}

	root, err := MarshalEntries(entries, h.InternalCompression)
	if err != nil {
		return h, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	mdJSON, err := json.Marshal(metadata)
	if err != nil {
		return h, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	md, err := compress(mdJSON, h.InternalCompression)
	if err != nil {
		return h, err
	}

	h.SpecVersion = 3
	h.Clustered = true
	h.RootOffset = HeaderLen
	h.RootLength = uint64(len(root))
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(md))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = 0
	h.TileDataOffset = h.LeafDirectoryOffset
	h.TileDataLength = uint64(data.Len())
	h.AddressedTilesCount = uint64(len(sorted))
	h.TileEntriesCount = uint64(len(entries))
	h.TileContentsCount = uint64(len(entries))

	hdr, _ := h.MarshalBinary()
	for _, part := range [][]byte{hdr, root, md, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return h, err
		}
	}
	return h, nil
}
