package column

import (
	"fmt"
)

// Date is an unsigned 32-bit Julian-day number. Parsing and formatting
// follow original_source/storage/src/storage/types.cc's
// MergeJulianDay algorithm ("from the Calendar FAQ") so stored values are
// bit-identical to the original for the same calendar date.
type Date uint32

func (d Date) LessEqual(o Date) bool { return d <= o }
func (d Date) Less(o Date) bool      { return d < o }
func (d Date) Equal(o Date) bool     { return d == o }

// ParseDate parses a "YYYY-MM-DD" string into its Julian-day representation.
func ParseDate(s string) (Date, error) {
	var year, month, day uint32
	n, err := fmt.Sscanf(s, "%d-%d-%d", &year, &month, &day)
	if err != nil || n != 3 {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(mergeJulianDay(year, month, day)), nil
}

func mergeJulianDay(year, month, day uint32) uint32 {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	return day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

// String formats the Julian-day value back as "YYYY-MM-DD", the inverse
// of mergeJulianDay (standard Julian-day-to-Gregorian conversion).
func (d Date) String() string {
	jd := uint32(d)
	a := jd + 32044
	b := (4*a + 3) / 146097
	c := a - (146097*b)/4
	dd := (4*c + 3) / 1461
	e := c - (1461*dd)/4
	m := (5*e + 2) / 153
	day := e - (153*m+2)/5 + 1
	month := m + 3 - 12*(m/10)
	year := 100*b + dd - 4800 + m/10
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}
