// Package numeric implements the arbitrary-precision integer and exact
// decimal model shared by the expression engine, the resolver, and the
// engine runtime. Every Decimal is canonical: trailing zeros are
// stripped from the mantissa so the only representation of zero is
// (0, 0), and equality/ordering operate on that canonical form.
package numeric

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Failure taxonomy (spec §4.A).
var (
	ErrInvalidDecimalLiteral      = errors.New("invalid decimal literal")
	ErrOverflow                   = errors.New("overflow")
	ErrDivisionByZero             = errors.New("division by zero")
	ErrNonExactDivision           = errors.New("non-exact division")
	ErrUnsupportedDecimalOperation = errors.New("unsupported decimal operation")
)

var (
	big10 = big.NewInt(10)
	big2  = big.NewInt(2)
	big5  = big.NewInt(5)
)

// Decimal is an exact-precision number represented as mantissa * 10^-scale.
// The zero value is the canonical zero (mantissa 0, scale 0).
type Decimal struct {
	mantissa *big.Int
	scale    uint32
}

// Zero is the canonical zero decimal.
func Zero() Decimal { return Decimal{mantissa: big.NewInt(0), scale: 0} }

// NewFromBigInt builds a canonical Decimal from a mantissa/scale pair.
func NewFromBigInt(mantissa *big.Int, scale uint32) Decimal {
	return normalize(Decimal{mantissa: new(big.Int).Set(mantissa), scale: scale})
}

// NewFromInt64 builds a canonical Decimal from an int64 and a scale.
func NewFromInt64(v int64, scale uint32) Decimal {
	return normalize(Decimal{mantissa: big.NewInt(v), scale: scale})
}

// normalize strips trailing zeros so mantissa % 10 != 0 unless the value
// is zero, in which case it collapses to (0, 0).
func normalize(d Decimal) Decimal {
	if d.mantissa == nil {
		d.mantissa = big.NewInt(0)
	}
	if d.mantissa.Sign() == 0 {
		return Decimal{mantissa: big.NewInt(0), scale: 0}
	}
	m := new(big.Int).Set(d.mantissa)
	scale := d.scale
	rem := new(big.Int)
	for scale > 0 {
		q, r := new(big.Int), new(big.Int)
		q.QuoRem(m, big10, r)
		rem = r
		if rem.Sign() != 0 {
			break
		}
		m = q
		scale--
	}
	return Decimal{mantissa: m, scale: scale}
}

// Parse parses a decimal literal: optional sign, integer digits, optional
// '.' + fractional digits, optional scientific suffix (e/E with optional
// sign and digits). Anything else fails with ErrInvalidDecimalLiteral.
func Parse(s string) (Decimal, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalLiteral, orig)
	}

	neg := false
	i := 0
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		i = 1
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	intDigits := s[start:i]

	fracDigits := ""
	if i < len(s) && s[i] == '.' {
		i++
		fstart := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		fracDigits = s[fstart:i]
	}

	if intDigits == "" && fracDigits == "" {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalLiteral, orig)
	}

	exp := 0
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		expNeg := false
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			expNeg = s[i] == '-'
			i++
		}
		expStart := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == expStart {
			return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalLiteral, orig)
		}
		e := new(big.Int)
		e.SetString(s[expStart:i], 10)
		exp = int(e.Int64())
		if expNeg {
			exp = -exp
		}
	}

	if i != len(s) {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalLiteral, orig)
	}

	digits := intDigits + fracDigits
	if digits == "" {
		digits = "0"
	}
	m := new(big.Int)
	if _, ok := m.SetString(digits, 10); !ok {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimalLiteral, orig)
	}
	scale := len(fracDigits) - exp
	if neg {
		m.Neg(m)
	}
	if scale < 0 {
		m = new(big.Int).Mul(m, new(big.Int).Exp(big10, big.NewInt(int64(-scale)), nil))
		scale = 0
	}
	return normalize(Decimal{mantissa: m, scale: uint32(scale)}), nil
}

// MustParse is Parse but panics on error; used for literals in tests.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Scale returns the canonical scale.
func (d Decimal) Scale() uint32 { return d.scale }

// Mantissa returns a copy of the canonical mantissa.
func (d Decimal) Mantissa() *big.Int {
	if d.mantissa == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(d.mantissa)
}

// IsZero reports whether the decimal is canonical zero.
func (d Decimal) IsZero() bool {
	return d.mantissa == nil || d.mantissa.Sign() == 0
}

// Sign returns -1, 0, or 1.
func (d Decimal) Sign() int {
	if d.mantissa == nil {
		return 0
	}
	return d.mantissa.Sign()
}

// align returns mantissas of a and b scaled to the same (max) scale.
func align(a, b Decimal) (ma, mb *big.Int, scale uint32) {
	scale = a.scale
	if b.scale > scale {
		scale = b.scale
	}
	ma = new(big.Int).Set(a.mantissa)
	mb = new(big.Int).Set(b.mantissa)
	if a.scale < scale {
		ma.Mul(ma, new(big.Int).Exp(big10, big.NewInt(int64(scale-a.scale)), nil))
	}
	if b.scale < scale {
		mb.Mul(mb, new(big.Int).Exp(big10, big.NewInt(int64(scale-b.scale)), nil))
	}
	return ma, mb, scale
}

// Add returns d + other, scale-aligned and re-normalized.
func (d Decimal) Add(other Decimal) Decimal {
	ma, mb, scale := align(d, other)
	return normalize(Decimal{mantissa: ma.Add(ma, mb), scale: scale})
}

// Sub returns d - other, scale-aligned and re-normalized.
func (d Decimal) Sub(other Decimal) Decimal {
	ma, mb, scale := align(d, other)
	return normalize(Decimal{mantissa: ma.Sub(ma, mb), scale: scale})
}

// Mul returns d * other; scales add.
func (d Decimal) Mul(other Decimal) Decimal {
	m := new(big.Int).Mul(d.mantissa, other.mantissa)
	return normalize(Decimal{mantissa: m, scale: d.scale + other.scale})
}

// Neg returns -d.
func (d Decimal) Neg() Decimal {
	return normalize(Decimal{mantissa: new(big.Int).Neg(d.mantissa), scale: d.scale})
}

// Abs returns |d|.
func (d Decimal) Abs() Decimal {
	return normalize(Decimal{mantissa: new(big.Int).Abs(d.mantissa), scale: d.scale})
}

// factorOutTwosAndFives repeatedly divides n by 2 and 5, returning the
// remaining cofactor and how many times each prime was removed.
func factorOutTwosAndFives(n *big.Int) (remaining *big.Int, count2, count5 int) {
	remaining = new(big.Int).Abs(n)
	q, r := new(big.Int), new(big.Int)
	for remaining.Sign() != 0 {
		q.QuoRem(remaining, big2, r)
		if r.Sign() != 0 {
			break
		}
		remaining = q
		count2++
		q, r = new(big.Int), new(big.Int)
	}
	for remaining.Sign() != 0 {
		q.QuoRem(remaining, big5, r)
		if r.Sign() != 0 {
			break
		}
		remaining = q
		count5++
		q, r = new(big.Int), new(big.Int)
	}
	return remaining, count2, count5
}

// DivExact performs exact rational division: numerator/denominator is
// reduced by GCD, then the remaining denominator must factor into only
// 2s and 5s or the division is refused as non-exact.
func (d Decimal) DivExact(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	// d.mantissa * 10^other.scale / (other.mantissa * 10^d.scale), scale-agnostic
	// equivalent to rational (d.mantissa / 10^d.scale) / (other.mantissa / 10^other.scale)
	num := new(big.Int).Set(d.mantissa)
	den := new(big.Int).Set(other.mantissa)

	// incorporate the scale difference into num/den as powers of ten
	if d.scale > other.scale {
		den.Mul(den, new(big.Int).Exp(big10, big.NewInt(int64(d.scale-other.scale)), nil))
	} else if other.scale > d.scale {
		num.Mul(num, new(big.Int).Exp(big10, big.NewInt(int64(other.scale-d.scale)), nil))
	}

	if num.Sign() == 0 {
		return Zero(), nil
	}

	g := new(big.Int).GCD(nil, nil, new(big.Int).Abs(num), new(big.Int).Abs(den))
	if g.Sign() != 0 {
		num.Quo(num, g)
		den.Quo(den, g)
	}
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}

	remaining, count2, count5 := factorOutTwosAndFives(den)
	if remaining.Cmp(big.NewInt(1)) != 0 {
		return Decimal{}, ErrNonExactDivision
	}

	scale := count2
	if count5 > scale {
		scale = count5
	}
	// pad numerator so the result is num * 10^scale / (2^count2 * 5^count5)
	padded := new(big.Int).Mul(num, new(big.Int).Exp(big10, big.NewInt(int64(scale)), nil))
	denom := new(big.Int).Mul(new(big.Int).Exp(big2, big.NewInt(int64(count2)), nil), new(big.Int).Exp(big5, big.NewInt(int64(count5)), nil))
	mantissa := new(big.Int).Quo(padded, denom)
	return normalize(Decimal{mantissa: mantissa, scale: uint32(scale)}), nil
}

// Cmp compares d and other cross-scale via alignment: -1, 0, or 1.
func (d Decimal) Cmp(other Decimal) int {
	ma, mb, _ := align(d, other)
	return ma.Cmp(mb)
}

// Equal reports structural equality on canonical form.
func (d Decimal) Equal(other Decimal) bool {
	return d.scale == other.scale && d.mantissa.Cmp(other.mantissa) == 0
}

// ToAtomicInt shifts the decimal point right by `decimals`, requiring an
// exact (integral) result.
func (d Decimal) ToAtomicInt(decimals int) (*big.Int, error) {
	shift := decimals - int(d.scale)
	m := new(big.Int).Set(d.mantissa)
	if shift >= 0 {
		m.Mul(m, new(big.Int).Exp(big10, big.NewInt(int64(shift)), nil))
		return m, nil
	}
	div := new(big.Int).Exp(big10, big.NewInt(int64(-shift)), nil)
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(m, div, r)
	if r.Sign() != 0 {
		return nil, ErrNonExactDivision
	}
	return q, nil
}

// FromAtomicInt builds a Decimal from an atomic integer and a decimals
// exponent (human = atomic / 10^decimals).
func FromAtomicInt(atomic *big.Int, decimals int) Decimal {
	if decimals < 0 {
		m := new(big.Int).Mul(atomic, new(big.Int).Exp(big10, big.NewInt(int64(-decimals)), nil))
		return normalize(Decimal{mantissa: m, scale: 0})
	}
	return normalize(Decimal{mantissa: new(big.Int).Set(atomic), scale: uint32(decimals)})
}

// Floor returns the greatest integer <= d, as a Decimal with scale 0.
func (d Decimal) Floor() Decimal {
	if d.scale == 0 {
		return d
	}
	div := new(big.Int).Exp(big10, big.NewInt(int64(d.scale)), nil)
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(d.mantissa, div, r)
	if r.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return normalize(Decimal{mantissa: q, scale: 0})
}

// Ceil returns the least integer >= d, as a Decimal with scale 0.
func (d Decimal) Ceil() Decimal {
	if d.scale == 0 {
		return d
	}
	div := new(big.Int).Exp(big10, big.NewInt(int64(d.scale)), nil)
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(d.mantissa, div, r)
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return normalize(Decimal{mantissa: q, scale: 0})
}

// Round rounds to the nearest integer, ties away from zero
// (|remainder|*2 >= divisor).
func (d Decimal) Round() Decimal {
	if d.scale == 0 {
		return d
	}
	div := new(big.Int).Exp(big10, big.NewInt(int64(d.scale)), nil)
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(d.mantissa, div, r)
	absR := new(big.Int).Abs(r)
	absR.Mul(absR, big2)
	if absR.Cmp(div) >= 0 {
		if d.mantissa.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return normalize(Decimal{mantissa: q, scale: 0})
}

// String renders the canonical decimal: sign, integer part, and
// fractional part (if scale > 0) separated by a dot.
func (d Decimal) String() string {
	if d.mantissa == nil || d.mantissa.Sign() == 0 {
		return "0"
	}
	neg := d.mantissa.Sign() < 0
	digits := new(big.Int).Abs(d.mantissa).String()
	scale := int(d.scale)
	if scale == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	for len(digits) <= scale {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-scale]
	fracPart := digits[len(digits)-scale:]
	s := intPart + "." + fracPart
	if neg {
		s = "-" + s
	}
	return s
}

// IsInteger reports whether the canonical scale is 0.
func (d Decimal) IsInteger() bool { return d.scale == 0 }
