package trace

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ComputeHash hashes a canonical trace encoding. Empty input hashes to "".
func ComputeHash(canonical []byte) string {
	if len(canonical) == 0 {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(canonical), 16)
}

// SuiteID derives a stable identity for a set of entry points, independent
// of the order they were discovered in.
func SuiteID(entries []string) string {
	sorted := append([]string(nil), entries...)
	sort.Strings(sorted)
	d := xxhash.New()
	for _, e := range sorted {
		_, _ = d.WriteString(e)
		_, _ = d.Write([]byte{0})
	}
	return "suite-" + strconv.FormatUint(d.Sum64(), 16)
}
