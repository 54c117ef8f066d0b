// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package query parses list-valued URL query parameters.
package query

import (
	"strings"
)

// StringSlice parses a single comma-separated query string
// into a trimmed slice of strings.
func StringSlice(val string) []string {
	if val == "" {
		return nil
	}
	var res []string
	for _, v := range strings.Split(val, ",") {
		clean := strings.TrimSpace(v)
		if clean != "" {
			res = append(res, clean)
		}
	}
	return res
}

// Values gathers a parameter given either repeated (?ids=a&ids=b) or
// comma separated (?ids=a,b), keeping first-seen order and dropping repeats.
func Values(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	var res []string
	for _, raw := range vals {
		for _, v := range StringSlice(raw) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			res = append(res, v)
		}
	}
	return res
}
