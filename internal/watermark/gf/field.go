// Package gf implements arithmetic over GF(2^8) using exponent and logarithm
// tables, together with polynomials whose coefficients are field elements.
//
// A field is defined by its primitive polynomial and generator base. The
// base is the power of the generator that the first Reed-Solomon generator
// root starts at (0 for QR codes, 1 for Data Matrix).
package gf

import "errors"

// ErrNoInverse is returned when inverting or taking the logarithm of zero.
var ErrNoInverse = errors.New("gf: zero has no inverse")

// Field is GF(size) built from a primitive polynomial. Fields are immutable
// after construction and safe for concurrent use.
type Field struct {
	primitive int
	size      int
	base      int
	exp       []int
	log       []int
	zero      *Poly
	one       *Poly
}

var (
	// QRCode is x^8 + x^4 + x^3 + x^2 + 1 with generator base 0.
	QRCode = NewField(0x011D, 256, 0)
	// DataMatrix is x^8 + x^5 + x^3 + x^2 + 1 with generator base 1.
	DataMatrix = NewField(0x012D, 256, 1)
)

// NewField builds the exp/log tables by repeated doubling, reducing by the
// primitive polynomial whenever the value leaves the field.
func NewField(primitive, size, base int) *Field {
	f := &Field{
		primitive: primitive,
		size:      size,
		base:      base,
		exp:       make([]int, size),
		log:       make([]int, size),
	}
	x := 1
	for i := range size {
		f.exp[i] = x
		x <<= 1
		if x >= size {
			x ^= primitive
			x &= size - 1
		}
	}
	for i := range size - 1 {
		f.log[f.exp[i]] = i
	}
	f.zero = &Poly{field: f, coefficients: []int{0}}
	f.one = &Poly{field: f, coefficients: []int{1}}
	return f
}

// Size is the number of elements in the field.
func (f *Field) Size() int { return f.size }

// Base is the generator base of the field.
func (f *Field) Base() int { return f.base }

// Zero returns the zero polynomial.
func (f *Field) Zero() *Poly { return f.zero }

// One returns the constant polynomial 1.
func (f *Field) One() *Poly { return f.one }

// BuildMonomial returns coefficient * x^degree.
func (f *Field) BuildMonomial(degree, coefficient int) *Poly {
	if degree < 0 {
		panic("gf: negative degree")
	}
	if coefficient == 0 {
		return f.zero
	}
	coefficients := make([]int, degree+1)
	coefficients[0] = coefficient
	return &Poly{field: f, coefficients: coefficients}
}

// Add is addition and subtraction alike in characteristic 2.
func Add(a, b int) int {
	return a ^ b
}

// Exp returns the generator raised to the power a.
func (f *Field) Exp(a int) int {
	return f.exp[a]
}

// Log returns the discrete logarithm of a.
func (f *Field) Log(a int) (int, error) {
	if a == 0 {
		return 0, ErrNoInverse
	}
	return f.log[a], nil
}

// Inverse returns the multiplicative inverse of a.
func (f *Field) Inverse(a int) (int, error) {
	if a == 0 {
		return 0, ErrNoInverse
	}
	return f.exp[f.size-f.log[a]-1], nil
}

// Multiply returns a * b.
func (f *Field) Multiply(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[(f.log[a]+f.log[b])%(f.size-1)]
}
