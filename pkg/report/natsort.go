// Package report builds the cross-run comparison tables.
package report

import (
	"sort"
	"strings"
	"unicode"
)

// NaturalLess orders strings treating runs of digits as numbers, so "2"
// sorts before "10". Text chunks compare case-insensitively.
func NaturalLess(a, b string) bool {
	ca, cb := chunks(a), chunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		if c := compareChunk(ca[i], cb[i], i%2 == 1); c != 0 {
			return c < 0
		}
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}

// NaturalSort sorts keys in place with NaturalLess
func NaturalSort(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool { return NaturalLess(keys[i], keys[j]) })
}

// chunks splits s into alternating text and digit runs, always starting
// with a (possibly empty) text run.
func chunks(s string) []string {
	var out []string
	var cur strings.Builder
	digits := false
	for _, r := range s {
		isDigit := unicode.IsDigit(r) && r < unicode.MaxASCII
		if isDigit != digits {
			out = append(out, cur.String())
			cur.Reset()
			digits = isDigit
		}
		cur.WriteRune(r)
	}
	out = append(out, cur.String())
	return out
}

func compareChunk(a, b string, numeric bool) int {
	if !numeric {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
