// Package pmtiles reads and writes PMTiles v3 archives: a fixed header, a
// compressed root directory, optional leaf directories, JSON metadata and
// the tile data, all addressed by Hilbert tile ids.
package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// Compression is the compression algorithm applied to tiles or directories.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

// TileType is the format of the tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

// Ext is the file extension tiles of this type get in a z/x/y directory.
func (t TileType) Ext() string {
	switch t {
	case Mvt:
		return "pbf"
	case Png:
		return "png"
	case Jpeg:
		return "jpg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	}
	return "bin"
}

// ContentType is the media type tiles of this type are served with.
func (t TileType) ContentType() string {
	switch t {
	case Mvt:
		return "application/x-protobuf"
	case Png:
		return "image/png"
	case Jpeg:
		return "image/jpeg"
	case Webp:
		return "image/webp"
	case Avif:
		return "image/avif"
	}
	return "application/octet-stream"
}

// IsVector reports whether the tiles are vector tiles.
func (t TileType) IsVector() bool { return t == Mvt }

// HeaderLen is the size of the binary header.
const HeaderLen = 127

// ErrNotArchive is returned for data without the archive magic.
var ErrNotArchive = errors.New("pmtiles: not a v3 archive")

const e7 = 10000000.0

// Header is the archive header.
type Header struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// Bound returns the geographic extent of the archive.
func (h Header) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(h.MinLonE7) / e7, float64(h.MinLatE7) / e7},
		Max: orb.Point{float64(h.MaxLonE7) / e7, float64(h.MaxLatE7) / e7},
	}
}

// SetBound stores b in the header's E7 fields.
func (h *Header) SetBound(b orb.Bound) {
	h.MinLonE7 = int32(b.Min.Lon() * e7)
	h.MinLatE7 = int32(b.Min.Lat() * e7)
	h.MaxLonE7 = int32(b.Max.Lon() * e7)
	h.MaxLatE7 = int32(b.Max.Lat() * e7)
}

// Center returns the default view point of the archive.
func (h Header) Center() orb.Point {
	return orb.Point{float64(h.CenterLonE7) / e7, float64(h.CenterLatE7) / e7}
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderLen)
	copy(b[0:7], "PMTiles")
	b[7] = 3

	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength,
		h.MetadataOffset, h.MetadataLength,
		h.LeafDirectoryOffset, h.LeafDirectoryLength,
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount,
	} {
		le.PutUint64(b[8+i*8:], v)
	}
	if h.Clustered {
		b[96] = 1
	}
	b[97] = uint8(h.InternalCompression)
	b[98] = uint8(h.TileCompression)
	b[99] = uint8(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b, nil
}

// UnmarshalBinary decodes a header.
func (h *Header) UnmarshalBinary(d []byte) error {
	if len(d) < HeaderLen {
		return fmt.Errorf("%w: header is %d bytes", ErrNotArchive, len(d))
	}
	if string(d[0:7]) != "PMTiles" {
		if len(d) > 2 && string(d[0:2]) == "PM" {
			return fmt.Errorf("%w: found version %d", ErrNotArchive, d[2])
		}
		return ErrNotArchive
	}

	le := binary.LittleEndian
	h.SpecVersion = d[7]
	fields := []*uint64{
		&h.RootOffset, &h.RootLength,
		&h.MetadataOffset, &h.MetadataLength,
		&h.LeafDirectoryOffset, &h.LeafDirectoryLength,
		&h.TileDataOffset, &h.TileDataLength,
		&h.AddressedTilesCount, &h.TileEntriesCount, &h.TileContentsCount,
	}
	for i, f := range fields {
		*f = le.Uint64(d[8+i*8:])
	}
	h.Clustered = d[96] == 1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(le.Uint32(d[102:]))
	h.MinLatE7 = int32(le.Uint32(d[106:]))
	h.MaxLonE7 = int32(le.Uint32(d[110:]))
	h.MaxLatE7 = int32(le.Uint32(d[114:]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))
	return nil
}
