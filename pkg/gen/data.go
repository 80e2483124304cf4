package gen

// DeleteFromSliceUnordered removes element i by moving the last element into its place
func DeleteFromSliceUnordered[T any](s []T, i int) []T {
	last := len(s) - 1
	s[i] = s[last]
	var zero T
	s[last] = zero
	return s[:last]
}

// DeleteFirst removes the first occurrence of v, without preserving order.
// If v is not present, s is returned unchanged.
func DeleteFirst[T comparable](s []T, v T) []T {
	for i := range s {
		if s[i] == v {
			return DeleteFromSliceUnordered(s, i)
		}
	}
	return s
}
