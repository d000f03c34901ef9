// Package dct implements an orthonormal 4x4 Type-II DCT and its inverse
// (Type-III), read from and written to blocks of a larger plane.
//
// The 1D transform over N = 4 samples:
//
//	X[k] = scale(k) * sum_{n=0}^{N-1} x[n] * cos(pi * k * (2n+1) / (2N))
//	scale(0) = sqrt(1/N), scale(k>0) = sqrt(2/N)
//
// Extract applies it along the vertical axis, then the horizontal axis.
// Insert undoes the horizontal axis first and writes the rows into the
// plane, then finishes the vertical axis in place.
package dct

import (
	"math"

	"golang.org/x/exp/constraints"
)

// BlockSize is the side of a DCT block.
const BlockSize = 4

// Block holds DCT coefficients indexed [u][v], where u is the horizontal
// frequency and v the vertical frequency.
type Block[T constraints.Float] [BlockSize][BlockSize]T

// Transform holds the precomputed cosine table. It is read-only after New
// and may be shared across goroutines.
type Transform[T constraints.Float] struct {
	// cos[n][k] = cos((2n+1) * k * pi / 2N)
	cos    [BlockSize][BlockSize]T
	scale  T
	isqrt2 T
}

func New[T constraints.Float]() *Transform[T] {
	t := &Transform[T]{
		scale:  T(math.Sqrt(2.0 / BlockSize)),
		isqrt2: T(1 / math.Sqrt2),
	}
	for n := range BlockSize {
		for k := range BlockSize {
			t.cos[n][k] = T(math.Cos(float64(2*n+1) * float64(k) * math.Pi / (2 * BlockSize)))
		}
	}
	return t
}

// Extract returns the coefficients of the block whose top-left sample is
// plane[y][x]. The plane is not modified.
func (t *Transform[T]) Extract(plane [][]T, x, y int) Block[T] {
	var b Block[T]

	for u := range BlockSize {
		for v := range BlockSize {
			var sum T
			for c := range BlockSize {
				sum += plane[y+c][x+u] * t.cos[c][v]
			}
			b[u][v] = t.scale * sum
		}
		b[u][0] *= t.isqrt2
	}

	var tmp [BlockSize]T
	for v := range BlockSize {
		for u := range BlockSize {
			var sum T
			for c := range BlockSize {
				sum += b[c][v] * t.cos[c][u]
			}
			tmp[u] = t.scale * sum
		}
		b[0][v] = tmp[0] * t.isqrt2
		for u := 1; u < BlockSize; u++ {
			b[u][v] = tmp[u]
		}
	}
	return b
}

// Insert writes the inverse transform of b into the block whose top-left
// sample is plane[y][x].
func (t *Transform[T]) Insert(b *Block[T], plane [][]T, x, y int) {
	for v := range BlockSize {
		dc := b[0][v] * t.isqrt2
		row := plane[y+v]
		for u := range BlockSize {
			sum := dc
			for c := 1; c < BlockSize; c++ {
				sum += b[c][v] * t.cos[u][c]
			}
			row[x+u] = t.scale * sum
		}
	}

	var tmp [BlockSize]T
	for u := range BlockSize {
		dc := plane[y][x+u] * t.isqrt2
		for v := range BlockSize {
			sum := dc
			for c := 1; c < BlockSize; c++ {
				sum += plane[y+c][x+u] * t.cos[v][c]
			}
			tmp[v] = t.scale * sum
		}
		for v := range BlockSize {
			plane[y+v][x+u] = tmp[v]
		}
	}
}
