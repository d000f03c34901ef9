package dwtdct

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSubband is returned for a subband that cannot carry a watermark.
var ErrSubband = errors.New("dwtdct: unsupported subband")

// Subband selects the wavelet detail band that carries the bits.
type Subband int

const (
	// LL is the approximation band. It is never used for embedding.
	LL Subband = iota
	LH
	HL
	HH
)

// DefaultSubband is used when the caller does not choose one.
const DefaultSubband = HL

func (s Subband) String() string {
	switch s {
	case LL:
		return "LL"
	case LH:
		return "LH"
	case HL:
		return "HL"
	case HH:
		return "HH"
	}
	return fmt.Sprintf("Subband(%d)", int(s))
}

// Valid reports whether s can carry a watermark.
func (s Subband) Valid() bool {
	return s == LH || s == HL || s == HH
}

// ParseSubband parses "LH", "HL" or "HH", case-insensitively. An empty
// string yields DefaultSubband.
func ParseSubband(s string) (Subband, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultSubband, nil
	case "LH":
		return LH, nil
	case "HL":
		return HL, nil
	case "HH":
		return HH, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrSubband, s)
}

// start returns the top-left corner of the band in a plane decomposed to a
// (w, h) approximation.
func (s Subband) start(w, h int) (x, y int, err error) {
	switch s {
	case LH:
		return 0, h, nil
	case HL:
		return w, 0, nil
	case HH:
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrSubband, s)
}
