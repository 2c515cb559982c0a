package aggregate

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newCollator returns a collator ordering labels the way a Spanish reader expects,
// with digit runs compared numerically ("Célula 2" before "Célula 10").
// Collators carry internal buffers and must not be shared across goroutines.
func newCollator() *collate.Collator {
	return collate.New(language.Spanish, collate.Numeric, collate.IgnoreCase)
}

// CompareLabels orders a and b naturally. Equal-collating labels fall back to a
// byte comparison so the order is total.
func CompareLabels(a, b string) int {
	return compareWith(newCollator(), a, b)
}

func compareWith(c *collate.Collator, a, b string) int {
	if n := c.CompareString(a, b); n != 0 {
		return n
	}
	return strings.Compare(a, b)
}

// SortGroups orders groups in place: time buckets chronologically by key, everything
// else naturally by label.
func SortGroups(d Dimension, groups []Group) {
	sortBy(d, groups, func(g Group) (string, string) { return g.Key, g.Label })
}

func sortBy[T any](d Dimension, items []T, keyLabel func(T) (string, string)) {
	if d.Temporal() {
		slices.SortStableFunc(items, func(a, b T) int {
			ka, _ := keyLabel(a)
			kb, _ := keyLabel(b)
			return strings.Compare(ka, kb)
		})
		return
	}
	c := newCollator()
	slices.SortStableFunc(items, func(a, b T) int {
		_, la := keyLabel(a)
		_, lb := keyLabel(b)
		return compareWith(c, la, lb)
	})
}
