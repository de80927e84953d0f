package processor

import "strings"

// Normalize collapses whitespace runs to single spaces and trims the ends.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitLines splits captured text into physical lines. "\r\n" and "\n" both
// terminate a line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// CountMatches returns how many physical lines of text contain target once
// both are normalized.
func CountMatches(text, target string) int {
	want := Normalize(target)
	n := 0
	for _, line := range SplitLines(text) {
		if strings.Contains(Normalize(line), want) {
			n++
		}
	}
	return n
}

// LineSet returns the set of normalized, non-empty lines in text.
func LineSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range SplitLines(text) {
		if l := Normalize(line); l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}

// MissingLines returns the expected lines absent from text, deduplicated,
// in the order they were first expected.
func MissingLines(text string, expected []string) []string {
	have := LineSet(text)
	seen := make(map[string]struct{}, len(expected))
	var missing []string
	for _, e := range expected {
		n := Normalize(e)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// VerifyLines reports whether every expected line is present in text.
// Line order and repeated lines do not matter.
func VerifyLines(text string, expected []string) bool {
	return len(MissingLines(text, expected)) == 0
}
