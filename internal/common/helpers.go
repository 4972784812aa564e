package common

import "sort"

// Must returns the value if err is nil and panics otherwise. Use only for
// calls that cannot fail at runtime (compiled-in data, constant inputs).
func Must[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

// IsStringInSortedSlice returns true if the string is present, assumes
// the slice is sorted.
func IsStringInSortedSlice(slice []string, s string) bool {
	i := sort.SearchStrings(slice, s)
	return i < len(slice) && slice[i] == s
}
