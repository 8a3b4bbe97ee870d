package pagination

// Merge performs a k-way merge of streams that are each already sorted so
// that before(a, b) holds for every a preceding b. It returns at most n
// items in merged order and reports whether any input item was left over.
//
// Callers fetch n+1 rows per stream after the same cursor key; the merged
// head is then globally correct and more reports whether another page
// exists.
func Merge[T any](streams [][]T, before func(a, b T) bool, n int) (out []T, more bool) {
	pos := make([]int, len(streams))
	out = make([]T, 0, n)
	for len(out) < n {
		best := -1
		for i, s := range streams {
			if pos[i] >= len(s) {
				continue
			}
			if best < 0 || before(s[pos[i]], streams[best][pos[best]]) {
				best = i
			}
		}
		if best < 0 {
			return out, false
		}
		out = append(out, streams[best][pos[best]])
		pos[best]++
	}
	for i, s := range streams {
		if pos[i] < len(s) {
			return out, true
		}
	}
	return out, false
}

// Newer orders keys newest-first, breaking ties by descending id. It is the
// order every keyset scan in the repository uses.
func Newer(a, b Key) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.After(b.Time)
	}
	return a.ID > b.ID
}
