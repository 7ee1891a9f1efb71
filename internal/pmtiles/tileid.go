package pmtiles

import "github.com/paulmach/orb/maptile"

// ZxyToID maps tile coordinates to their position on the Hilbert curve,
// counting all tiles of lower zooms first.
func ZxyToID(z uint8, x, y uint32) uint64 {
	acc := (uint64(1)<<(2*uint64(z)) - 1) / 3
	tx, ty := uint64(x), uint64(y)
	for s := uint64(1) << z >> 1; s > 0; s >>= 1 {
		rx := b2u(tx&s > 0)
		ry := b2u(ty&s > 0)
		acc += s * s * ((3 * rx) ^ ry)
		tx, ty = rotate(s, tx, ty, rx, ry)
	}
	return acc
}

// IDToZxy is the inverse of ZxyToID.
func IDToZxy(id uint64) (uint8, uint32, uint32) {
	var acc uint64
	for z := uint8(0); z < 32; z++ {
		n := uint64(1) << (2 * uint64(z))
		if acc+n > id {
			x, y := onLevel(z, id-acc)
			return z, x, y
		}
		acc += n
	}
	return 0, 0, 0
}

func onLevel(z uint8, pos uint64) (uint32, uint32) {
	n := uint64(1) << z
	var tx, ty uint64
	t := pos
	for s := uint64(1); s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		tx, ty = rotate(s, tx, ty, rx, ry)
		tx += s * rx
		ty += s * ry
		t /= 4
	}
	return uint32(tx), uint32(ty)
}

func rotate(n, x, y, rx, ry uint64) (uint64, uint64) {
	if ry == 0 {
		if rx == 1 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// TileID is ZxyToID for a maptile.Tile.
func TileID(t maptile.Tile) uint64 {
	return ZxyToID(uint8(t.Z), t.X, t.Y)
}

// IDToTile is IDToZxy returning a maptile.Tile.
func IDToTile(id uint64) maptile.Tile {
	z, x, y := IDToZxy(id)
	return maptile.New(x, y, maptile.Zoom(z))
}
