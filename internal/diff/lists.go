package diff

import (
	"strconv"

	"sitevc.dev/sitevc/internal/model"
)

// OccurrenceKeys keys list members by value and occurrence, so that repeated
// scalars stay distinct: the second "a" is keyed apart from the first.
func OccurrenceKeys(items []model.Value) []string {
	seen := make(map[string]int, len(items))
	keys := make([]string, len(items))
	for i, item := range items {
		k := item.Key()
		n := seen[k]
		seen[k] = n + 1
		if n > 0 {
			k += "#" + strconv.Itoa(n)
		}
		keys[i] = k
	}
	return keys
}

// CompareLists reports membership and relative-order differences
func CompareLists(old, cur []model.Value) *ListDelta {
	oldKeys := OccurrenceKeys(old)
	curKeys := OccurrenceKeys(cur)
	inOld := toSet(oldKeys)
	inCur := toSet(curKeys)

	delta := &ListDelta{}
	for i, k := range curKeys {
		if !inOld[k] {
			delta.Inserted = append(delta.Inserted, cur[i])
		}
	}
	for i, k := range oldKeys {
		if !inCur[k] {
			delta.Removed = append(delta.Removed, old[i])
		}
	}
	delta.Reordered = !sameOrder(filter(oldKeys, inCur), filter(curKeys, inOld))
	return delta
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func filter(keys []string, keep map[string]bool) []string {
	var out []string
	for _, k := range keys {
		if keep[k] {
			out = append(out, k)
		}
	}
	return out
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
