// Package chroma moves the blue-difference chroma (Cb) of a BGRA pixel buffer
// in and out of a floating point plane.
//
//	Y  =       0.299    R + 0.587    G + 0.114    B
//	Cb = 128 - 0.168736 R - 0.331264 G + 0.5      B
//	Cr =       0.5      R - 0.418688 G - 0.081312 B
//
// Buffers are 4 bytes per pixel in B, G, R, A order, rows packed without
// padding.
package chroma

import (
	"image"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/YannKr/fingerprint/internal/parallel"
)

// BytesPerPixel is the size of one BGRA pixel.
const BytesPerPixel = 4

// Per-byte products of the conversion matrix, built once.
var (
	yR, yG, yB    [256]float64
	cbR, cbG, cbB [256]float64
	crR, crG, crB [256]float64
)

func init() {
	for i := range 256 {
		v := float64(i)
		yR[i], yG[i], yB[i] = 0.299*v, 0.587*v, 0.114*v
		cbR[i], cbG[i], cbB[i] = -0.168736*v, -0.331264*v, 0.5*v
		crR[i], crG[i], crB[i] = 0.5*v, -0.418688*v, -0.081312*v
	}
}

// Extract returns the Cb values of the pixels inside r as a plane indexed
// [y][x], relative to r.Min. width is the buffer width in pixels.
func Extract[T constraints.Float](bgra []byte, width int, r image.Rectangle) [][]T {
	plane := make([][]T, r.Dy())
	parallel.For(r.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := make([]T, r.Dx())
			off := ((y+r.Min.Y)*width + r.Min.X) * BytesPerPixel
			for x := range row {
				b, g, rd := bgra[off], bgra[off+1], bgra[off+2]
				row[x] = T(128 + cbR[rd] + cbG[g] + cbB[b])
				off += BytesPerPixel
			}
			plane[y] = row
		}
	})
	return plane
}

// Insert writes plane back as the Cb of the pixels inside r. Luma and Cr are
// taken from each pixel's current bytes; only blue and green are rewritten,
// red and alpha are left as they are.
func Insert(bgra []byte, plane [][]float64, width int, r image.Rectangle) {
	parallel.For(r.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := plane[y]
			off := ((y+r.Min.Y)*width + r.Min.X) * BytesPerPixel
			for x := range r.Dx() {
				b, g, rd := bgra[off], bgra[off+1], bgra[off+2]
				oy := yR[rd] + yG[g] + yB[b]
				ocr := crR[rd] + crG[g] + crB[b]
				ocb := row[x] - 128
				bgra[off] = clamp(oy + 1.772*ocb)
				bgra[off+1] = clamp(oy - 0.344136*ocb - 0.714136*ocr)
				off += BytesPerPixel
			}
		}
	})
}

// clamp rounds half to even and saturates to a byte.
func clamp(d float64) byte {
	if d < 0 {
		return 0
	}
	if d > 255 {
		return 255
	}
	return byte(math.RoundToEven(d))
}
