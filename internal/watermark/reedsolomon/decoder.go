package reedsolomon

import (
	"errors"
	"fmt"

	"github.com/YannKr/fingerprint/internal/watermark/gf"
)

// ErrDecode is returned when a codeword holds more errors than its parity
// can correct. The returned bytes must not be trusted in that case.
var ErrDecode = errors.New("reedsolomon: uncorrectable codeword")

// ErrCodewordLength is returned for a codeword with more symbols than the
// field has nonzero elements. Errors in such a codeword cannot be located.
var ErrCodewordLength = errors.New("reedsolomon: codeword too long")

// MaxCodewordLength is the longest codeword, message plus parity, whose
// errors can be located in field.
func MaxCodewordLength(field *gf.Field) int {
	return field.Size() - 1
}

// Decoder corrects codewords produced by an Encoder over the same field.
type Decoder struct {
	field *gf.Field
}

func NewDecoder(field *gf.Field) *Decoder {
	return &Decoder{field: field}
}

// Decode checks message against its parity ecc and returns the corrected
// message. Up to len(ecc)/2 corrupted symbols anywhere in the codeword are
// repaired. Neither input is modified.
func (d *Decoder) Decode(message, ecc []byte) ([]byte, error) {
	if len(ecc) == 0 {
		return append([]byte(nil), message...), nil
	}
	if n := len(message) + len(ecc); n > MaxCodewordLength(d.field) {
		return nil, fmt.Errorf("%w: %w: %d symbols, field allows %d", ErrDecode, ErrCodewordLength, n, MaxCodewordLength(d.field))
	}
	received := make([]int, len(message)+len(ecc))
	for i, b := range message {
		received[i] = int(b)
	}
	for i, b := range ecc {
		received[len(message)+i] = int(b)
	}
	if err := d.correct(received, len(ecc)); err != nil {
		return nil, err
	}
	out := make([]byte, len(message))
	for i := range out {
		out[i] = byte(received[i])
	}
	return out, nil
}

// correct repairs received in place given twoS parity symbols.
func (d *Decoder) correct(received []int, twoS int) error {
	f := d.field
	syndromes, clean := d.syndromes(received, twoS)
	if clean {
		return nil
	}

	sigma, omega, err := d.euclidean(f.BuildMonomial(twoS, 1), gf.NewPoly(f, syndromes), twoS)
	if err != nil {
		return err
	}
	if sigma.Degree() > twoS/2 {
		return fmt.Errorf("%w: %d errors exceed capacity %d", ErrDecode, sigma.Degree(), twoS/2)
	}
	locations, err := d.errorLocations(sigma)
	if err != nil {
		return err
	}
	magnitudes, err := d.errorMagnitudes(omega, locations)
	if err != nil {
		return err
	}
	for i, loc := range locations {
		l, err := f.Log(loc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		position := len(received) - 1 - l
		if position < 0 {
			return fmt.Errorf("%w: bad error location", ErrDecode)
		}
		received[position] = gf.Add(received[position], magnitudes[i])
	}
	if _, clean := d.syndromes(received, twoS); !clean {
		return fmt.Errorf("%w: corrected codeword still fails parity", ErrDecode)
	}
	return nil
}

// syndromes evaluates received at each generator root, highest power
// first. clean reports whether every syndrome is zero.
func (d *Decoder) syndromes(received []int, twoS int) (syndromes []int, clean bool) {
	f := d.field
	poly := gf.NewPoly(f, received)
	syndromes = make([]int, twoS)
	clean = true
	for i := range twoS {
		eval := poly.EvaluateAt(f.Exp(i + f.Base()))
		syndromes[len(syndromes)-1-i] = eval
		if eval != 0 {
			clean = false
		}
	}
	return syndromes, clean
}

// euclidean runs the extended Euclidean algorithm on x^R and the syndrome
// polynomial, returning the error locator sigma and evaluator omega.
func (d *Decoder) euclidean(a, b *gf.Poly, R int) (sigma, omega *gf.Poly, err error) {
	f := d.field
	if a.Degree() < b.Degree() {
		a, b = b, a
	}
	rLast, r := a, b
	tLast, t := f.Zero(), f.One()

	for 2*r.Degree() >= R {
		rLastLast, tLastLast := rLast, tLast
		rLast, tLast = r, t
		if rLast.IsZero() {
			return nil, nil, fmt.Errorf("%w: remainder reached zero", ErrDecode)
		}
		r = rLastLast
		q := f.Zero()
		dltInverse, err := f.Inverse(rLast.Coefficient(rLast.Degree()))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		for r.Degree() >= rLast.Degree() && !r.IsZero() {
			degreeDiff := r.Degree() - rLast.Degree()
			scale := f.Multiply(r.Coefficient(r.Degree()), dltInverse)
			q = q.Add(f.BuildMonomial(degreeDiff, scale))
			r = r.Add(rLast.MultiplyByMonomial(degreeDiff, scale))
		}
		t = q.Multiply(tLast).Add(tLastLast)
		if r.Degree() >= rLast.Degree() {
			return nil, nil, fmt.Errorf("%w: division failed to reduce polynomial", ErrDecode)
		}
	}

	sigmaTildeAtZero := t.Coefficient(0)
	if sigmaTildeAtZero == 0 {
		return nil, nil, fmt.Errorf("%w: sigma(0) is zero", ErrDecode)
	}
	inverse, err := f.Inverse(sigmaTildeAtZero)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return t.MultiplyScalar(inverse), r.MultiplyScalar(inverse), nil
}

// errorLocations finds the inverses of the roots of the locator by trying
// every nonzero field element.
func (d *Decoder) errorLocations(locator *gf.Poly) ([]int, error) {
	f := d.field
	numErrors := locator.Degree()
	if numErrors == 1 {
		return []int{locator.Coefficient(1)}, nil
	}
	result := make([]int, 0, numErrors)
	for i := 1; i < f.Size() && len(result) < numErrors; i++ {
		if locator.EvaluateAt(i) != 0 {
			continue
		}
		inv, err := f.Inverse(i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		result = append(result, inv)
	}
	if len(result) != numErrors {
		return nil, fmt.Errorf("%w: locator degree %d does not match %d roots", ErrDecode, numErrors, len(result))
	}
	return result, nil
}

// errorMagnitudes applies Forney's formula.
func (d *Decoder) errorMagnitudes(evaluator *gf.Poly, locations []int) ([]int, error) {
	f := d.field
	result := make([]int, len(locations))
	for i, loc := range locations {
		xiInverse, err := f.Inverse(loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		denominator := 1
		for j, other := range locations {
			if i == j {
				continue
			}
			term := f.Multiply(other, xiInverse)
			// 1 + term without a table lookup.
			termPlus1 := term &^ 1
			if term&1 == 0 {
				termPlus1 = term | 1
			}
			denominator = f.Multiply(denominator, termPlus1)
		}
		invDenominator, err := f.Inverse(denominator)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		result[i] = f.Multiply(evaluator.EvaluateAt(xiInverse), invDenominator)
		if f.Base() != 0 {
			result[i] = f.Multiply(result[i], xiInverse)
		}
	}
	return result, nil
}
