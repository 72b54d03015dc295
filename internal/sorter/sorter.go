// Package sorter establishes the filename order photos are processed in.
//
// Cameras number files sequentially, so filename order is shooting order.
// Upload arrival order is meaningless (uploads run in parallel chunks), which
// is why segmentation never looks at upload timestamps.
package sorter

import (
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// compare orders two filenames with numeric-aware comparison, so that
// IMG_0002 sorts before IMG_0010. Ties on collation keys (e.g. case
// differences folded by the collator) fall back to bytewise comparison to
// keep the order total and deterministic.
func compare(c *collate.Collator, a, b string) int {
	if r := c.CompareString(a, b); r != 0 {
		return r
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// newCollator returns a numeric-aware collator. Collators are not safe for
// concurrent use, so each sort gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}

// ByFilename sorts file paths by their base filename using numeric-aware
// comparison. The input slice is not modified; the returned slice is a new
// ordering of the same elements. Identical input sets produce identical
// output on every invocation regardless of input order.
func ByFilename(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	c := newCollator()
	sort.SliceStable(sorted, func(i, j int) bool {
		return compare(c, filepath.Base(sorted[i]), filepath.Base(sorted[j])) < 0
	})
	return sorted
}

// Order compares filenames for callers that sort richer records keyed by
// filename. Like the underlying collator it is not safe for concurrent use.
type Order struct {
	c *collate.Collator
}

func NewOrder() *Order {
	return &Order{c: newCollator()}
}

// Less reports whether filename a orders before filename b.
func (o *Order) Less(a, b string) bool {
	return compare(o.c, filepath.Base(a), filepath.Base(b)) < 0
}
