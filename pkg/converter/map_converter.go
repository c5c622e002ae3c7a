package converter

import (
	"cmp"
	"slices"
)

func MapKeysToSlice[K comparable, T any](m map[K]T) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, T any](m map[K]T) []K {
	keys := MapKeysToSlice(m)
	slices.Sort(keys)
	return keys
}

// MissingKeys returns the keys of m absent from known, sorted.
func MissingKeys[K cmp.Ordered, T, U any](m map[K]T, known map[K]U) []K {
	var missing []K
	for _, k := range SortedKeys(m) {
		if _, ok := known[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
