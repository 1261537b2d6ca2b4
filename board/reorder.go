package board

// Move returns a copy of items with the element at from reinserted at to.
// Elements in between shift by one position; all others keep their place.
// Out of range indexes return an unchanged copy.
func Move[T any](items []T, from, to int) []T {
	out := append([]T(nil), items...)
	if from < 0 || to < 0 || from >= len(out) || to >= len(out) || from == to {
		return out
	}
	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}
