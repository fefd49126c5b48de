// Package utils provides small helpers for reading query parameters. They
// carry no domain logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s (surrounding space ignored) as an int, returning def
// when s is empty or not a valid integer.
//
//	utils.AtoiDefault("42", 0)  // 42
//	utils.AtoiDefault(" 7", 1)  // 7
//	utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SplitList splits a comma-separated parameter, trimming items and dropping
// empty ones. ok is false when more than max items remain (max <= 0 means
// no limit).
func SplitList(s string, max int) (items []string, ok bool) {
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	if max > 0 && len(items) > max {
		return items, false
	}
	return items, true
}
