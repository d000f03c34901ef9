// Package dwtdct hides bits in the wavelet detail band of a chroma plane.
//
// The plane is decomposed with a Haar DWT to the level chosen by the clip
// planner. The selected detail band is tiled with 4x4 DCT blocks, each
// carrying one bit as the sign of the sum of four mid-band coefficients.
// Bits are assigned to blocks in row-major order, least significant bit of
// each byte first.
package dwtdct

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/YannKr/fingerprint/internal/parallel"
	"github.com/YannKr/fingerprint/internal/watermark/clip"
	"github.com/YannKr/fingerprint/internal/watermark/dct"
	"github.com/YannKr/fingerprint/internal/watermark/dwt"
)

const (
	// strength is the embedding gain at level 1; it halves per extra level.
	strength = 6.0
	// minMagnitude keeps near-zero sums from producing a vanishing delta.
	minMagnitude = 2.0
)

// midband lists the [u][v] positions whose sum carries the bit.
var midband = [...][2]int{{1, 2}, {2, 0}, {2, 1}, {2, 2}}

func midbandSum[T constraints.Float](b *dct.Block[T]) T {
	var sum T
	for _, p := range midband {
		sum += b[p[0]][p[1]]
	}
	return sum
}

// layout is the block grid of one plane.
type layout struct {
	level      int
	posX, posY int
	cols, rows int
}

func plan[T constraints.Float](plane [][]T, length int, band Subband) (layout, error) {
	if len(plane) == 0 || len(plane[0]) == 0 {
		return layout{}, fmt.Errorf("dwtdct: empty plane")
	}
	width, height := len(plane[0]), len(plane)
	maxW, maxH, level := clip.Level(length, width, height)
	if level == 0 {
		return layout{}, fmt.Errorf("%w: %d bytes in %dx%d plane", clip.ErrCapacity, length, width, height)
	}
	posX, posY, err := band.start(width>>level, height>>level)
	if err != nil {
		return layout{}, err
	}
	return layout{
		level: level,
		posX:  posX,
		posY:  posY,
		cols:  maxW / dct.BlockSize,
		rows:  maxH / dct.BlockSize,
	}, nil
}

// origin returns the plane coordinates of block (bx, z).
func (l layout) origin(bx, z int) (x, y int) {
	return l.posX + bx*dct.BlockSize, l.posY + z*dct.BlockSize
}

// Insert embeds payload into plane in place. The plane must be the clip
// region's chroma so that its sides are divisible by 4 << level.
func Insert(plane [][]float64, payload []byte, band Subband) error {
	l, err := plan(plane, len(payload), band)
	if err != nil {
		return err
	}
	if err := dwt.Forward(plane, l.level); err != nil {
		return fmt.Errorf("dwtdct insert: %w", err)
	}

	sigma := strength / float64(int(1)<<(l.level-1))
	bitLen := len(payload) * 8
	tr := dct.New[float64]()
	parallel.For(l.rows, func(start, end int) {
		for z := start; z < end; z++ {
			for bx := range l.cols {
				pos := z*l.cols + bx
				if pos >= bitLen {
					return
				}
				s := sigma
				if payload[pos>>3]>>(pos&7)&1 == 0 {
					s = -s
				}
				x, y := l.origin(bx, z)
				b := tr.Extract(plane, x, y)
				delta := math.Max(math.Abs(midbandSum(&b)), minMagnitude) * s
				for _, p := range midband {
					b[p[0]][p[1]] += delta
				}
				tr.Insert(&b, plane, x, y)
			}
		}
	})

	if err := dwt.Reverse(plane, l.level); err != nil {
		return fmt.Errorf("dwtdct insert: %w", err)
	}
	return nil
}

// Extract reads totalLength bytes from plane. The plane is left in the
// wavelet domain.
func Extract[T constraints.Float](plane [][]T, totalLength int, band Subband) ([]byte, error) {
	l, err := plan(plane, totalLength, band)
	if err != nil {
		return nil, err
	}
	if err := dwt.Forward(plane, l.level); err != nil {
		return nil, fmt.Errorf("dwtdct extract: %w", err)
	}

	bits := make([]bool, l.rows*l.cols)
	tr := dct.New[T]()
	parallel.For(l.rows, func(start, end int) {
		for z := start; z < end; z++ {
			for bx := range l.cols {
				x, y := l.origin(bx, z)
				b := tr.Extract(plane, x, y)
				bits[z*l.cols+bx] = midbandSum(&b) > 0
			}
		}
	})

	out := make([]byte, totalLength)
	for i, bit := range bits {
		if i>>3 >= totalLength {
			break
		}
		if bit {
			out[i>>3] |= 1 << (i & 7)
		}
	}
	return out, nil
}
