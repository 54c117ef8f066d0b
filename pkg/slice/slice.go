// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package slice complements the standard [slices] package with small generic
helpers used when shaping query results.
*/
package slice

// Map maps a slice of type T to a slice of type U using the provided transformation function.
func Map[T any, U any](input []T, transform func(T) U) []U {
	if input == nil {
		return nil
	}

	result := make([]U, len(input))
	for i, v := range input {
		result[i] = transform(v)
	}

	return result
}

// Unique drops repeated keys, keeping the first occurrence and input order.
func Unique[T comparable](input []T) []T {
	if input == nil {
		return nil
	}
	seen := make(map[T]struct{}, len(input))
	result := make([]T, 0, len(input))
	for _, v := range input {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// GroupBy partitions input by key, preserving element order inside each group.
// The returned keys follow first appearance.
func GroupBy[T any, K comparable](input []T, key func(T) K) ([]K, map[K][]T) {
	groups := make(map[K][]T)
	var keys []K
	for _, v := range input {
		k := key(v)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], v)
	}
	return keys, groups
}
