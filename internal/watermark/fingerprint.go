// Package watermark embeds and recovers fingerprints in raster images.
//
// A fingerprint is an arbitrary byte payload followed by len/2 bytes of
// Reed-Solomon parity. The combined bytes are hidden in the blue-difference
// chroma of a centred clip of the image by the DWT-DCT codec, and Extract
// reverses the process, repairing up to len/4 corrupted bytes.
package watermark

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/YannKr/fingerprint/internal/watermark/chroma"
	"github.com/YannKr/fingerprint/internal/watermark/clip"
	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
	"github.com/YannKr/fingerprint/internal/watermark/reedsolomon"
)

var (
	// ErrInvalidBitmap is returned when a buffer does not match its dimensions.
	ErrInvalidBitmap = errors.New("watermark: invalid bitmap")
	// ErrEmptyPayload is returned for a zero-length payload.
	ErrEmptyPayload = errors.New("watermark: empty payload")
)

// Bitmap is a BGRA pixel buffer: 4 bytes per pixel in blue, green, red,
// alpha order, rows packed without padding.
type Bitmap struct {
	Pix    []byte
	Width  int
	Height int
}

// NewBitmap allocates a zeroed width x height bitmap.
func NewBitmap(width, height int) *Bitmap {
	return &Bitmap{
		Pix:    make([]byte, width*height*chroma.BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

func (b *Bitmap) validate() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: empty", ErrInvalidBitmap)
	}
	if len(b.Pix) != b.Width*b.Height*chroma.BytesPerPixel {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidBitmap, len(b.Pix), b.Width, b.Height)
	}
	return nil
}

// Clone returns a deep copy of b.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{Pix: append([]byte(nil), b.Pix...), Width: b.Width, Height: b.Height}
}

// MaxPayloadLength is the longest payload whose codeword, payload plus
// parity, fits the 255 locatable positions of GF(256).
const MaxPayloadLength = 170

// parityLength is the number of Reed-Solomon bytes protecting n payload bytes.
func parityLength(n int) int {
	return n / 2
}

// Capacity returns the clip that would carry a payload of n bytes in a
// width x height image, or clip.ErrCapacity if it does not fit.
func Capacity(n, width, height int) (clip.Clip, error) {
	if n > MaxPayloadLength {
		return clip.Clip{}, fmt.Errorf("%w: %d byte payload exceeds %d", clip.ErrCapacity, n, MaxPayloadLength)
	}
	return clip.Best(n+parityLength(n), width, height)
}

// Insert embeds payload into bm in place using the given subband. On error
// the buffer is left untouched.
func Insert(bm *Bitmap, payload []byte, band dwtdct.Subband) error {
	if err := bm.validate(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if !band.Valid() {
		return fmt.Errorf("watermark insert: %w: %s", dwtdct.ErrSubband, band)
	}
	c, err := Capacity(len(payload), bm.Width, bm.Height)
	if err != nil {
		return fmt.Errorf("watermark insert: %w", err)
	}

	ecc, err := reedsolomon.Encode(payload, parityLength(len(payload)))
	if err != nil {
		return fmt.Errorf("watermark insert: %w", err)
	}
	total := make([]byte, 0, len(payload)+len(ecc))
	total = append(total, payload...)
	total = append(total, ecc...)

	r := c.Rect()
	plane := chroma.Extract[float64](bm.Pix, bm.Width, r)
	if err := dwtdct.Insert(plane, total, band); err != nil {
		return fmt.Errorf("watermark insert: %w", err)
	}
	chroma.Insert(bm.Pix, plane, bm.Width, r)
	return nil
}

// Extract recovers a payload of payloadLength bytes from bm, which is not
// modified. An uncorrectable payload returns an error wrapping
// reedsolomon.ErrDecode.
func Extract(bm *Bitmap, payloadLength int, band dwtdct.Subband) ([]byte, error) {
	return extract[float64](bm, payloadLength, band)
}

// FastExtract is Extract computed in single precision.
func FastExtract(bm *Bitmap, payloadLength int, band dwtdct.Subband) ([]byte, error) {
	return extract[float32](bm, payloadLength, band)
}

func extract[T constraints.Float](bm *Bitmap, payloadLength int, band dwtdct.Subband) ([]byte, error) {
	if err := bm.validate(); err != nil {
		return nil, err
	}
	if payloadLength <= 0 {
		return nil, ErrEmptyPayload
	}
	c, err := Capacity(payloadLength, bm.Width, bm.Height)
	if err != nil {
		return nil, fmt.Errorf("watermark extract: %w", err)
	}
	total := payloadLength + parityLength(payloadLength)
	plane := chroma.Extract[T](bm.Pix, bm.Width, c.Rect())
	data, err := dwtdct.Extract(plane, total, band)
	if err != nil {
		return nil, fmt.Errorf("watermark extract: %w", err)
	}
	payload, err := reedsolomon.Decode(data[:payloadLength], data[payloadLength:])
	if err != nil {
		return nil, fmt.Errorf("watermark extract: %w", err)
	}
	return payload, nil
}
