// Package dwt implements an in-place multi-level 2D Haar Discrete Wavelet
// Transform.
//
// Each level transforms the top-left (w>>k) x (h>>k) region of the plane,
// leaving the approximation in its top-left quarter:
//
//	[ LL | HL ]
//	[ LH | HH ]
//
// HL is high-pass along rows and low-pass along columns; LH is the reverse.
package dwt

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/YannKr/fingerprint/internal/parallel"
)

// ErrDimensions is returned when the plane cannot be halved the requested
// number of times.
var ErrDimensions = errors.New("dwt: dimensions not divisible by 2^levels")

// forward1D applies the Haar forward transform to src using tmp as scratch.
// avg[i] = (src[2i] + src[2i+1]) / 2, diff[i] = (src[2i] - src[2i+1]) / 2,
// written back as [avg..., diff...].
func forward1D[T constraints.Float](src, tmp []T) {
	half := len(src) / 2
	for i := range half {
		a, b := src[2*i], src[2*i+1]
		tmp[i] = a*0.5 + b*0.5
		tmp[half+i] = a*0.5 - b*0.5
	}
	copy(src, tmp[:len(src)])
}

// inverse1D reconstructs samples from [avg..., diff...] in place.
func inverse1D[T constraints.Float](src, tmp []T) {
	half := len(src) / 2
	for i := range half {
		lo, hi := src[i], src[half+i]
		tmp[2*i] = (lo*0.5 + hi*0.5) * 2
		tmp[2*i+1] = (lo*0.5 - hi*0.5) * 2
	}
	copy(src, tmp[:len(src)])
}

func checkDims[T constraints.Float](plane [][]T, levels int) (w, h int, err error) {
	if levels < 0 {
		return 0, 0, fmt.Errorf("dwt: negative level count %d", levels)
	}
	h = len(plane)
	if h == 0 {
		return 0, 0, fmt.Errorf("%w: empty plane", ErrDimensions)
	}
	w = len(plane[0])
	mask := 1<<levels - 1
	if w&mask != 0 || h&mask != 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d at %d levels", ErrDimensions, w, h, levels)
	}
	return w, h, nil
}

// Forward applies levels rounds of the 2D Haar transform in place. Each
// round transforms columns, then rows.
func Forward[T constraints.Float](plane [][]T, levels int) error {
	w, h, err := checkDims(plane, levels)
	if err != nil {
		return err
	}
	for k := range levels {
		lw, lh := w>>k, h>>k
		columns(plane, lw, lh, forward1D[T])
		rows(plane, lw, lh, forward1D[T])
	}
	return nil
}

// Reverse undoes Forward, starting from the coarsest level. Each round
// transforms rows, then columns.
func Reverse[T constraints.Float](plane [][]T, levels int) error {
	w, h, err := checkDims(plane, levels)
	if err != nil {
		return err
	}
	for k := levels - 1; k >= 0; k-- {
		lw, lh := w>>k, h>>k
		rows(plane, lw, lh, inverse1D[T])
		columns(plane, lw, lh, inverse1D[T])
	}
	return nil
}

func rows[T constraints.Float](plane [][]T, lw, lh int, fn func(src, tmp []T)) {
	parallel.For(lh, func(start, end int) {
		tmp := make([]T, lw)
		for y := start; y < end; y++ {
			fn(plane[y][:lw], tmp)
		}
	})
}

func columns[T constraints.Float](plane [][]T, lw, lh int, fn func(src, tmp []T)) {
	parallel.For(lw, func(start, end int) {
		col := make([]T, lh)
		tmp := make([]T, lh)
		for x := start; x < end; x++ {
			for y := range lh {
				col[y] = plane[y][x]
			}
			fn(col, tmp)
			for y := range lh {
				plane[y][x] = col[y]
			}
		}
	})
}

// MakePlane allocates a rows x cols plane.
func MakePlane[T constraints.Float](rows, cols int) [][]T {
	g := make([][]T, rows)
	for i := range g {
		g[i] = make([]T, cols)
	}
	return g
}
