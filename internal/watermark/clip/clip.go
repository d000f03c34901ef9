// Package clip sizes the image region that carries a watermark.
//
// Every payload byte needs 128 samples of the decomposed subband, so the
// region is halved until one more halving would leave too little room. The
// number of halvings is the wavelet level used for embedding.
package clip

import (
	"errors"
	"fmt"
	"image"
)

// ErrCapacity is returned when an image is too small for a payload.
var ErrCapacity = errors.New("clip: image too small for payload")

// samplesPerByte is the subband area reserved for one payload byte.
const samplesPerByte = 1 << 7

// Clip is a region of the image and the wavelet level it is decomposed to.
// Width and Height are divisible by 4 << Level.
type Clip struct {
	X, Y          int
	Width, Height int
	Level         int
}

// Rect returns the clip as a rectangle in image coordinates.
func (c Clip) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// Level rounds width and height down to multiples of 4 and halves them
// while the halved area still exceeds length*128. It returns the final
// subband dimensions and the number of halvings.
func Level(length, width, height int) (w, h, level int) {
	w = width >> 2 << 2
	h = height >> 2 << 2
	target := length << 7
	area := w * h
	for area > target {
		nw := (w >> 1) >> 2 << 2
		nh := (h >> 1) >> 2 << 2
		area = nw * nh
		if area > target {
			w, h = nw, nh
			level++
		}
	}
	return w, h, level
}

// Best returns the clip for a payload of length bytes in a width x height
// image. The clip is planned inside the centred 15/16 of the image and must
// allow at least one wavelet level.
func Best(length, width, height int) (Clip, error) {
	if length <= 0 {
		return Clip{}, fmt.Errorf("%w: empty payload", ErrCapacity)
	}
	w, h, level := Level(length, width/16*15, height/16*15)
	if level == 0 {
		return Clip{}, fmt.Errorf("%w: %d bytes in %dx%d", ErrCapacity, length, width, height)
	}
	c := Clip{
		Width:  w << level,
		Height: h << level,
		Level:  level,
	}
	c.X = (width - c.Width) >> 1
	c.Y = (height - c.Height) >> 1
	return c, nil
}
