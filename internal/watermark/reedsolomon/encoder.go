// Package reedsolomon computes and checks Reed-Solomon parity over GF(256).
//
// The generator polynomial for n parity symbols is
//
//	g(x) = (x + a^b)(x + a^(b+1)) ... (x + a^(b+n-1))
//
// where a is the field generator and b its base. Parity is the remainder of
// message(x) * x^n divided by g(x), so a codeword is the message followed by
// its parity.
package reedsolomon

import (
	"fmt"
	"sync"

	"github.com/YannKr/fingerprint/internal/watermark/gf"
)

// Encoder produces parity symbols. Generators are cached and the encoder is
// safe for concurrent use.
type Encoder struct {
	field *gf.Field

	mu         sync.Mutex
	generators []*gf.Poly
}

func NewEncoder(field *gf.Field) *Encoder {
	return &Encoder{
		field:      field,
		generators: []*gf.Poly{field.One()},
	}
}

func (e *Encoder) generator(degree int) *gf.Poly {
	e.mu.Lock()
	defer e.mu.Unlock()
	for d := len(e.generators); d <= degree; d++ {
		last := e.generators[d-1]
		root := gf.NewPoly(e.field, []int{1, e.field.Exp(d - 1 + e.field.Base())})
		e.generators = append(e.generators, last.Multiply(root))
	}
	return e.generators[degree]
}

// Encode returns eccCount parity bytes for message. An eccCount of zero
// yields an empty slice.
func (e *Encoder) Encode(message []byte, eccCount int) ([]byte, error) {
	if eccCount < 0 {
		return nil, fmt.Errorf("reedsolomon: negative parity count %d", eccCount)
	}
	if eccCount == 0 {
		return []byte{}, nil
	}
	if len(message) == 0 {
		return nil, fmt.Errorf("reedsolomon: empty message")
	}
	if n := len(message) + eccCount; n > MaxCodewordLength(e.field) {
		return nil, fmt.Errorf("%w: %d symbols, field allows %d", ErrCodewordLength, n, MaxCodewordLength(e.field))
	}

	info := make([]int, len(message))
	for i, b := range message {
		info[i] = int(b)
	}
	shifted := gf.NewPoly(e.field, info).MultiplyByMonomial(eccCount, 1)
	_, remainder, err := shifted.Divide(e.generator(eccCount))
	if err != nil {
		return nil, fmt.Errorf("reedsolomon: encode: %w", err)
	}

	coefficients := remainder.Coefficients()
	if remainder.IsZero() {
		coefficients = nil
	}
	parity := make([]byte, eccCount)
	pad := eccCount - len(coefficients)
	for i, c := range coefficients {
		parity[pad+i] = byte(c)
	}
	return parity, nil
}
