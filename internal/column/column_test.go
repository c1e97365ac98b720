package column

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNumericScalesFractionalDigits(t *testing.T) {
	n, err := ParseNumeric("17.00", 2)
	require.NoError(t, err)
	require.Equal(t, Numeric{Raw: 1700, Scale: 2}, n)

	n, err = ParseNumeric("0.04", 2)
	require.NoError(t, err)
	require.Equal(t, Numeric{Raw: 4, Scale: 2}, n)

	n, err = ParseNumeric("-5.5", 2)
	require.NoError(t, err)
	require.Equal(t, Numeric{Raw: -550, Scale: 2}, n)
}

func TestParseNumericRejectsTooManyFractionalDigits(t *testing.T) {
	_, err := ParseNumeric("1.234", 2)
	require.Error(t, err)
}

func TestParseNumericRejectsNonDigits(t *testing.T) {
	_, err := ParseNumeric("12x34", 2)
	require.Error(t, err)
}

func TestNumericAddSub(t *testing.T) {
	a := NewNumeric(1700, 2)
	b := NewNumeric(300, 2)
	require.Equal(t, NewNumeric(2000, 2), a.Add(b))
	require.Equal(t, NewNumeric(1400, 2), a.Sub(b))
}

func TestNumericAddPanicsOnScaleMismatch(t *testing.T) {
	require.Panics(t, func() {
		NewNumeric(1, 2).Add(NewNumeric(1, 4))
	})
}

func TestNumericMulDoublesScale(t *testing.T) {
	price := NewNumeric(2000, 2)  // 20.00
	factor := NewNumeric(95, 2)   // 0.95
	got := price.Mul(factor)
	require.Equal(t, 4, got.Scale)
	require.Equal(t, int64(190000), got.Raw) // 19.0000
}

func TestNumericDivByScale4(t *testing.T) {
	numerator := NewNumeric(190000, 4) // 19.0000
	denominator := NewNumeric(1000000, 4)
	got := numerator.DivByScale4(denominator)
	require.Equal(t, numerator.Scale, got.Scale)
	require.Equal(t, int64(1900), got.Raw)
}

func TestNumericDivByScale4PanicsOnWrongDivisorScale(t *testing.T) {
	require.Panics(t, func() {
		NewNumeric(1, 2).DivByScale4(NewNumeric(1, 2))
	})
}

func TestNumericCastM2(t *testing.T) {
	got := NewNumeric(190000, 4).CastM2()
	require.Equal(t, NewNumeric(1900, 2), got)
}

func TestNumericString(t *testing.T) {
	require.Equal(t, "17.00", NewNumeric(1700, 2).String())
	require.Equal(t, "0.04", NewNumeric(4, 2).String())
	require.Equal(t, "-5.50", NewNumeric(-550, 2).String())
	require.Equal(t, "42", NewNumeric(42, 0).String())
}

func TestParseDateAndStringRoundTrip(t *testing.T) {
	d, err := ParseDate("1996-03-13")
	require.NoError(t, err)
	require.Equal(t, "1996-03-13", d.String())
}

func TestDateOrdering(t *testing.T) {
	low, err := ParseDate("1995-09-01")
	require.NoError(t, err)
	high, err := ParseDate("1995-10-01")
	require.NoError(t, err)

	require.True(t, low.Less(high))
	require.True(t, low.LessEqual(high))
	require.True(t, low.LessEqual(low))
	require.True(t, low.Equal(low))
	require.False(t, high.Less(low))
}

func TestParseDateRejectsMalformedInput(t *testing.T) {
	_, err := ParseDate("not-a-date")
	require.Error(t, err)
}

func TestIntegerHashIsDeterministic(t *testing.T) {
	a := Integer(12345)
	require.Equal(t, a.Hash(), a.Hash())
	require.NotEqual(t, a.Hash(), Integer(12346).Hash())
}

func TestIntegerOrdering(t *testing.T) {
	require.True(t, Integer(1).Less(Integer(2)))
	require.False(t, Integer(2).Less(Integer(1)))
	require.True(t, Integer(3).Equal(Integer(3)))
}

func TestVarcharTruncatesToMaxLen(t *testing.T) {
	v := NewVarchar(4, "PROMOTIONAL")
	require.Equal(t, "PROM", v.String())
}

func TestVarcharKeepsShortStringIntact(t *testing.T) {
	v := NewVarchar(25, "PROMO ANODIZED TIN")
	require.Equal(t, "PROMO ANODIZED TIN", v.String())
}

func TestLengthIndicatorSize(t *testing.T) {
	require.Equal(t, 1, LengthIndicatorSize(25))
	require.Equal(t, 2, LengthIndicatorSize(1000))
	require.Equal(t, 4, LengthIndicatorSize(100000))
}
