// Package textcmp provides the output-comparison primitives used by the
// verdict comparator.
package textcmp

import (
	"bytes"
	"strings"
	"unicode"
)

// EqualExact reports whole-content byte equality.
func EqualExact(produced, answer []byte) bool {
	return bytes.Equal(produced, answer)
}

// TrimTrailing drops trailing whitespace from s.
func TrimTrailing(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// EqualNormalized compares the two contents line by line. Both sides are
// trimmed of trailing whitespace as a whole, split on '\n', and must have
// the same line count with each pair equal after trailing-whitespace trim
// on that line.
func EqualNormalized(produced, answer []byte) bool {
	got := strings.Split(TrimTrailing(string(produced)), "\n")
	want := strings.Split(TrimTrailing(string(answer)), "\n")
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if TrimTrailing(got[i]) != TrimTrailing(want[i]) {
			return false
		}
	}
	return true
}
