// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package convert provides strict scalar conversions for query parameters.

Unlike a silent fallback, each helper distinguishes an absent value from a
malformed one, so handlers can apply a default for the first and reject the
second.
*/
package convert

import (
	"strconv"
	"strings"
)

// ToIntD converts a string to an int, returning def when the string is empty.
// The boolean is false when a non-empty string fails to parse.
func ToIntD(str string, def int) (int, bool) {
	str = strings.TrimSpace(str)
	if str == "" {
		return def, true
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return def, false
	}
	return v, true
}

// ToFloat64 parses a float, reporting whether the string was present and valid.
func ToFloat64(str string) (float64, bool) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
