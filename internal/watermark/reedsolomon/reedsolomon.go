package reedsolomon

import "github.com/YannKr/fingerprint/internal/watermark/gf"

var (
	defaultEncoder = NewEncoder(gf.DataMatrix)
	defaultDecoder = NewDecoder(gf.DataMatrix)
)

// Encode returns eccCount parity bytes for message over the Data Matrix field.
func Encode(message []byte, eccCount int) ([]byte, error) {
	return defaultEncoder.Encode(message, eccCount)
}

// Decode corrects message using parity produced by Encode.
func Decode(message, ecc []byte) ([]byte, error) {
	return defaultDecoder.Decode(message, ecc)
}
