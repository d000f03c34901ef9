package gf

import "errors"

// ErrDivideByZero is returned when dividing by the zero polynomial.
var ErrDivideByZero = errors.New("gf: divide by zero polynomial")

// Poly is a polynomial over a Field. Coefficients are stored from the
// highest degree down to the constant term, with no leading zeros except
// for the zero polynomial itself. Polys are immutable.
type Poly struct {
	field        *Field
	coefficients []int
}

// NewPoly returns the polynomial with the given coefficients, most
// significant first. The slice is copied.
func NewPoly(field *Field, coefficients []int) *Poly {
	if len(coefficients) == 0 {
		panic("gf: empty coefficients")
	}
	first := 0
	for first < len(coefficients)-1 && coefficients[first] == 0 {
		first++
	}
	if coefficients[first] == 0 {
		return field.zero
	}
	return &Poly{field: field, coefficients: append([]int(nil), coefficients[first:]...)}
}

// Coefficients returns a copy of the coefficients, most significant first.
func (p *Poly) Coefficients() []int {
	return append([]int(nil), p.coefficients...)
}

// Degree is the degree of the polynomial; the zero polynomial has degree 0.
func (p *Poly) Degree() int {
	return len(p.coefficients) - 1
}

func (p *Poly) IsZero() bool {
	return p.coefficients[0] == 0
}

// Coefficient returns the coefficient of x^degree.
func (p *Poly) Coefficient(degree int) int {
	return p.coefficients[len(p.coefficients)-1-degree]
}

// EvaluateAt returns p(a).
func (p *Poly) EvaluateAt(a int) int {
	if a == 0 {
		return p.Coefficient(0)
	}
	if a == 1 {
		result := 0
		for _, c := range p.coefficients {
			result = Add(result, c)
		}
		return result
	}
	result := p.coefficients[0]
	for _, c := range p.coefficients[1:] {
		result = Add(p.field.Multiply(a, result), c)
	}
	return result
}

// Add returns p + other, which equals p - other.
func (p *Poly) Add(other *Poly) *Poly {
	if p.IsZero() {
		return other
	}
	if other.IsZero() {
		return p
	}
	smaller, larger := p.coefficients, other.coefficients
	if len(smaller) > len(larger) {
		smaller, larger = larger, smaller
	}
	sum := make([]int, len(larger))
	diff := len(larger) - len(smaller)
	copy(sum, larger[:diff])
	for i := diff; i < len(larger); i++ {
		sum[i] = Add(smaller[i-diff], larger[i])
	}
	return NewPoly(p.field, sum)
}

// Multiply returns p * other.
func (p *Poly) Multiply(other *Poly) *Poly {
	if p.IsZero() || other.IsZero() {
		return p.field.zero
	}
	a, b := p.coefficients, other.coefficients
	product := make([]int, len(a)+len(b)-1)
	for i, ac := range a {
		for j, bc := range b {
			product[i+j] = Add(product[i+j], p.field.Multiply(ac, bc))
		}
	}
	return NewPoly(p.field, product)
}

// MultiplyScalar returns scalar * p.
func (p *Poly) MultiplyScalar(scalar int) *Poly {
	switch scalar {
	case 0:
		return p.field.zero
	case 1:
		return p
	}
	product := make([]int, len(p.coefficients))
	for i, c := range p.coefficients {
		product[i] = p.field.Multiply(c, scalar)
	}
	return NewPoly(p.field, product)
}

// MultiplyByMonomial returns p * coefficient * x^degree.
func (p *Poly) MultiplyByMonomial(degree, coefficient int) *Poly {
	if degree < 0 {
		panic("gf: negative degree")
	}
	if coefficient == 0 {
		return p.field.zero
	}
	product := make([]int, len(p.coefficients)+degree)
	for i, c := range p.coefficients {
		product[i] = p.field.Multiply(c, coefficient)
	}
	return NewPoly(p.field, product)
}

// Divide returns the quotient and remainder of p / other.
func (p *Poly) Divide(other *Poly) (quotient, remainder *Poly, err error) {
	if other.IsZero() {
		return nil, nil, ErrDivideByZero
	}
	quotient = p.field.zero
	remainder = p

	inverseLeading, err := p.field.Inverse(other.Coefficient(other.Degree()))
	if err != nil {
		return nil, nil, err
	}
	for remainder.Degree() >= other.Degree() && !remainder.IsZero() {
		degreeDiff := remainder.Degree() - other.Degree()
		scale := p.field.Multiply(remainder.Coefficient(remainder.Degree()), inverseLeading)
		quotient = quotient.Add(p.field.BuildMonomial(degreeDiff, scale))
		remainder = remainder.Add(other.MultiplyByMonomial(degreeDiff, scale))
	}
	return quotient, remainder, nil
}
