package pmtiles

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxDepth bounds the root → leaf → leaf chain a lookup follows.
const maxDepth = 4

// Reader gives random access to the tiles of an archive.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	header Header
	root   []Entry
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and root directory from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	buf := make([]byte, HeaderLen)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("pmtiles: read header: %w", err)
	}
	var h Header
	if err := h.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	root, err := readDirectory(r, h, h.RootOffset, h.RootLength)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: root directory: %w", err)
	}
	return &Reader{r: r, header: h, root: root}, nil
}

// Close releases the underlying file, if Open created it.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Header returns the archive header.
func (r *Reader) Header() Header { return r.header }

// Metadata decodes the JSON metadata block.
func (r *Reader) Metadata() (map[string]any, error) {
	if r.header.MetadataLength == 0 {
		return map[string]any{}, nil
	}
	raw, err := r.section(r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	data, err := decompress(raw, r.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	md := map[string]any{}
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	return md, nil
}

// Tile returns the decompressed contents of a tile. ok is false when the
// archive has no such tile.
func (r *Reader) Tile(z uint8, x, y uint32) (data []byte, ok bool, err error) {
	id := ZxyToID(z, x, y)
	dir := r.root
	for depth := 0; depth < maxDepth; depth++ {
		e, found := FindTile(dir, id)
		if !found {
			return nil, false, nil
		}
		if e.RunLength > 0 {
			data, err := r.tileData(e)
			return data, err == nil, err
		}
		dir, err = readDirectory(r.r, r.header, r.header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return nil, false, fmt.Errorf("pmtiles: leaf directory: %w", err)
		}
	}
	return nil, false, fmt.Errorf("pmtiles: directory nesting deeper than %d", maxDepth)
}

// Walk calls fn for every addressed tile, expanding runs and leaves.
func (r *Reader) Walk(fn func(z uint8, x, y uint32, data []byte) error) error {
	return r.walk(r.root, 0, fn)
}

func (r *Reader) walk(dir []Entry, depth int, fn func(z uint8, x, y uint32, data []byte) error) error {
	if depth >= maxDepth {
		return fmt.Errorf("pmtiles: directory nesting deeper than %d", maxDepth)
	}
	for _, e := range dir {
		if e.RunLength == 0 {
			leaf, err := readDirectory(r.r, r.header, r.header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
			if err != nil {
				return fmt.Errorf("pmtiles: leaf directory: %w", err)
			}
			if err := r.walk(leaf, depth+1, fn); err != nil {
				return err
			}
			continue
		}
		data, err := r.tileData(e)
		if err != nil {
			return err
		}
		for i := uint64(0); i < uint64(e.RunLength); i++ {
			z, x, y := IDToZxy(e.TileID + i)
			if err := fn(z, x, y, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) tileData(e Entry) ([]byte, error) {
	raw, err := r.section(r.header.TileDataOffset+e.Offset, uint64(e.Length))
	if err != nil {
		return nil, err
	}
	return decompress(raw, r.header.TileCompression)
}

func (r *Reader) section(offset, length uint64) ([]byte, error) {
	return readSection(r.r, offset, length)
}

func readSection(r io.ReaderAt, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("pmtiles: read %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

func readDirectory(r io.ReaderAt, h Header, offset, length uint64) ([]Entry, error) {
	raw, err := readSection(r, offset, length)
	if err != nil {
		return nil, err
	}
	return UnmarshalEntries(raw, h.InternalCompression)
}
