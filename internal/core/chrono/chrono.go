// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package chrono parses and compares the historical dates attached to Time tags.

Dates arrive in the Wikidata time format (e.g. "+1990-05-12T00:00:00Z",
"-0044-03-15T00:00:00Z") together with a precision. Years are not bounded by
the Go [time] package range, so a [Date] keeps the calendar fields as plain
integers and orders them lexicographically.

Precision numbering follows Wikidata:

  - 6: millennium
  - 7: century
  - 8: decade
  - 9: year
  - 10: month
  - 11: day
*/
package chrono

import (
	"fmt"
	"strconv"
	"strings"
)

// Precision is the granularity of a historical date.
type Precision int

const (
	PrecisionMillennium Precision = 6
	PrecisionCentury    Precision = 7
	PrecisionDecade     Precision = 8
	PrecisionYear       Precision = 9
	PrecisionMonth      Precision = 10
	PrecisionDay        Precision = 11
)

// Valid reports whether p is one of the supported precisions.
func (p Precision) Valid() bool {
	return p >= PrecisionMillennium && p <= PrecisionDay
}

// String returns the lowercase precision name.
func (p Precision) String() string {
	switch p {
	case PrecisionMillennium:
		return "millennium"
	case PrecisionCentury:
		return "century"
	case PrecisionDecade:
		return "decade"
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	default:
		return "unknown"
	}
}

// Date is a calendar position with its precision.
//
// Month and Day are zero when the precision is coarser than the field.
type Date struct {
	Year      int64     `json:"year"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	Precision Precision `json:"precision"`
}

// Parse reads a Wikidata style datetime string.
//
// The leading sign is optional. Missing month/day parts are accepted so plain
// years ("1990") and dates ("1990-05-12") also parse.
func Parse(value string, precision Precision) (Date, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return Date{}, fmt.Errorf("chrono: empty datetime")
	}

	if !precision.Valid() {
		precision = PrecisionDay
	}

	negative := false
	switch raw[0] {
	case '+':
		raw = raw[1:]
	case '-':
		negative = true
		raw = raw[1:]
	}

	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		raw = raw[:i]
	}

	parts := strings.Split(raw, "-")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Date{}, fmt.Errorf("chrono: malformed datetime %q", value)
	}

	year, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Date{}, fmt.Errorf("chrono: malformed year in %q: %w", value, err)
	}
	if negative {
		year = -year
	}

	date := Date{Year: year, Precision: precision}

	if len(parts) > 1 {
		month, err := strconv.Atoi(parts[1])
		if err != nil || month < 0 || month > 12 {
			return Date{}, fmt.Errorf("chrono: malformed month in %q", value)
		}
		date.Month = month
	}

	if len(parts) > 2 {
		day, err := strconv.Atoi(parts[2])
		if err != nil || day < 0 || day > 31 {
			return Date{}, fmt.Errorf("chrono: malformed day in %q", value)
		}
		date.Day = day
	}

	// Fields finer than the precision carry no meaning.
	if precision < PrecisionMonth {
		date.Month = 0
	}
	if precision < PrecisionDay {
		date.Day = 0
	}

	return date, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(value string, precision Precision) Date {
	date, err := Parse(value, precision)
	if err != nil {
		panic(err)
	}
	return date
}

// Compare orders a before b by year, month, day and then precision, with
// coarser dates first. It returns -1, 0 or +1.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int64(d.Month - other.Month))
	case d.Day != other.Day:
		return sign(int64(d.Day - other.Day))
	case d.Precision != other.Precision:
		return sign(int64(d.Precision - other.Precision))
	}
	return 0
}

// Before reports whether d sorts strictly before other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// CompareOptional orders possibly absent dates. Undated values sort last.
func CompareOptional(a, b *Date) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// String renders the date back in the Wikidata format.
func (d Date) String() string {
	prefix := "+"
	year := d.Year
	if year < 0 {
		prefix = "-"
		year = -year
	}
	return fmt.Sprintf("%s%04d-%02d-%02dT00:00:00Z", prefix, year, d.Month, d.Day)
}

func sign(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
