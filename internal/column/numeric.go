package column

import (
	"fmt"
	"strings"
)

// Numeric is a fixed-point decimal stored as a 64-bit integer equal to
// the value times 10^Scale. Unlike the C++ original's Numeric<L,S>
// template, Go has no value-level template parameters, so the scale is
// carried as a runtime field rather than a type parameter, the same
// trade-off pkg/common/decimal.go makes by wrapping a single concrete
// decimal type instead of parameterizing over precision. L (total
// digits) is not needed at runtime; it only bounded the original's
// fixed storage width and is neither stored nor checked here.
type Numeric struct {
	Raw   int64
	Scale int
}

// NewNumeric builds a Numeric from an already-scaled raw integer.
func NewNumeric(raw int64, scale int) Numeric {
	return Numeric{Raw: raw, Scale: scale}
}

func (n Numeric) Add(o Numeric) Numeric {
	mustMatchScale(n, o)
	return Numeric{Raw: n.Raw + o.Raw, Scale: n.Scale}
}

func (n Numeric) Sub(o Numeric) Numeric {
	mustMatchScale(n, o)
	return Numeric{Raw: n.Raw - o.Raw, Scale: n.Scale}
}

// Mul composes Numeric<L,S> x Numeric<L,S> -> Numeric<L,2S>.
func (n Numeric) Mul(o Numeric) Numeric {
	mustMatchScale(n, o)
	return Numeric{Raw: n.Raw * o.Raw, Scale: n.Scale + o.Scale}
}

// DivByScale4 divides by a Numeric of scale 4, yielding the same scale as
// the receiver (via scaling by 10^4), mirroring Numeric::operator/ for
// the "divide by a Numeric<l,4>" overload in types.h.
func (n Numeric) DivByScale4(o Numeric) Numeric {
	if o.Scale != 4 {
		panic(fmt.Sprintf("DivByScale4 requires a scale-4 divisor, got scale %d", o.Scale))
	}
	return Numeric{Raw: n.Raw * 10000 / o.Raw, Scale: n.Scale}
}

// CastM2 divides the raw value by 100 and reduces scale by 2.
func (n Numeric) CastM2() Numeric {
	return Numeric{Raw: n.Raw / 100, Scale: n.Scale - 2}
}

func mustMatchScale(a, b Numeric) {
	if a.Scale != b.Scale {
		panic(fmt.Sprintf("numeric scale mismatch: %d vs %d", a.Scale, b.Scale))
	}
}

// ParseNumeric accepts at most two fractional digits and applies
// 10^(2-digits) so the stored raw is in units of the target scale, per
// the FromString parse in types.h.
func ParseNumeric(s string, scale int) (Numeric, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	var result int64
	fraction := false
	digitsSeenFraction := 0
	for _, c := range s {
		switch {
		case c == '.':
			fraction = true
		case c >= '0' && c <= '9':
			result = result*10 + int64(c-'0')
			if fraction {
				digitsSeenFraction++
			}
		default:
			return Numeric{}, fmt.Errorf("invalid numeric literal %q", s)
		}
	}
	if digitsSeenFraction > 2 {
		return Numeric{}, fmt.Errorf("numeric literal %q has more than 2 fractional digits", s)
	}
	shifts := [3]int64{100, 10, 1}
	result *= shifts[digitsSeenFraction]
	if neg {
		result = -result
	}
	return Numeric{Raw: result, Scale: scale}, nil
}

// String formats the value the way operator<<(ostream&, Numeric<L,S>) in
// types.h does: sign, integer part, '.', zero-padded fractional part.
func (n Numeric) String() string {
	raw := n.Raw
	sign := ""
	if raw < 0 {
		sign = "-"
		raw = -raw
	}
	if n.Scale == 0 {
		return fmt.Sprintf("%s%d", sign, raw)
	}
	sep := int64(1)
	for i := 0; i < n.Scale; i++ {
		sep *= 10
	}
	intPart := raw / sep
	fracPart := raw % sep
	return fmt.Sprintf("%s%d.%0*d", sign, intPart, n.Scale, fracPart)
}
