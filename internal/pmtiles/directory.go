package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// Entry is one directory entry. RunLength 0 marks a pointer to a leaf
// directory; otherwise RunLength consecutive tile ids share the same data.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// MarshalEntries encodes a directory: count, delta tile ids, run lengths,
// lengths, then offsets (0 meaning "directly after the previous entry").
func MarshalEntries(entries []Entry, c Compression) ([]byte, error) {
	var raw bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		raw.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		put(e.TileID - last)
		last = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
		} else {
			put(e.Offset + 1)
		}
	}
	return compress(raw.Bytes(), c)
}

// UnmarshalEntries decodes a directory.
func UnmarshalEntries(data []byte, c Compression) ([]Entry, error) {
	raw, err := decompress(data, c)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	next := func() (uint64, error) {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return 0, fmt.Errorf("pmtiles: truncated directory: %w", err)
		}
		return v, nil
	}

	n, err := next()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(raw)) {
		return nil, fmt.Errorf("pmtiles: directory claims %d entries in %d bytes", n, len(raw))
	}
	entries := make([]Entry, n)

	var last uint64
	for i := range entries {
		d, err := next()
		if err != nil {
			return nil, err
		}
		last += d
		entries[i].TileID = last
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		switch {
		case v > 0:
			entries[i].Offset = v - 1
		case i > 0:
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		default:
			return nil, fmt.Errorf("pmtiles: first entry has no offset")
		}
	}
	return entries, nil
}

// FindTile looks tileID up in a sorted directory. The result is either the
// entry whose run covers tileID or the leaf pointer that may contain it.
func FindTile(entries []Entry, tileID uint64) (Entry, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		switch id := entries[mid].TileID; {
		case tileID > id:
			lo = mid + 1
		case tileID < id:
			hi = mid - 1
		default:
			return entries[mid], true
		}
	}
	if hi >= 0 {
		e := entries[hi]
		if e.RunLength == 0 || tileID-e.TileID < uint64(e.RunLength) {
			return e, true
		}
	}
	return Entry{}, false
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression, UnknownCompression:
		return data, nil
	case Gzip:
		var b bytes.Buffer
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("pmtiles: compression %d not supported", c)
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression, UnknownCompression:
		return data, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("pmtiles: gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return nil, fmt.Errorf("pmtiles: compression %d not supported", c)
}
