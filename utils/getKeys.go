package utils

import (
	"maps"
	"slices"
)

// GetKeys returns the keys of m sorted.
func GetKeys[T any](m map[string]T) []string {
	keys := slices.Sorted(maps.Keys(m))
	if keys == nil {
		return []string{}
	}
	return keys
}
