package vecindex

import (
	"strconv"
	"strings"
)

// FormatVersion is written into every persisted index. Only an exactly equal
// version is loaded; anything else is rebuilt from the embedding matrix.
const FormatVersion = "1.0.0"

func parseSemver(s string) (major, minor, patch int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(parts) < 3 {
		return 0, 0, 0, false
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], true
}

// compareSemver returns -1, 0 or 1. An unparsable a sorts as older.
func compareSemver(a, b string) int {
	ma, na, pa, okA := parseSemver(a)
	mb, nb, pb, okB := parseSemver(b)
	if !okA {
		return -1
	}
	if !okB {
		return 0
	}
	for _, d := range [][2]int{{ma, mb}, {na, nb}, {pa, pb}} {
		if d[0] < d[1] {
			return -1
		}
		if d[0] > d[1] {
			return 1
		}
	}
	return 0
}
