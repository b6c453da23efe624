// Package utils holds small helpers for parsing command arguments.
package utils

import (
	"strconv"
	"strings"
)

// FirstArg returns the first whitespace-separated word of s, or "".
func FirstArg(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// AtoiDefault parses s as a positive int. Empty, malformed, zero and
// negative input yield def.
//
//	n := utils.AtoiDefault("42", 20) // 42
//	n = utils.AtoiDefault("-3", 20)  // 20
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
