package sched

import "sort"

// selectForeground picks the visible spread: the current slot and the one
// after it, clipped to [0,n), in that order.
func selectForeground(current, n int) []int {
	out := make([]int, 0, 2)
	for _, i := range []int{current, current + 1} {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}

// selectBackground picks up to batch slots around current that still need
// rendering. Candidates span [current-window, current+window+ahead] clipped
// to [0,n); busy reports slots already cached or in flight. Results are
// ordered by ascending distance from current, ties by ascending index.
func selectBackground(current, n, window, ahead, batch int, busy func(int) bool) []int {
	if n <= 0 || batch <= 0 {
		return nil
	}
	lo, hi := current-window, current+window+ahead
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}

	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		if !busy(i) {
			out = append(out, i)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		da, db := dist(out[a], current), dist(out[b], current)
		if da != db {
			return da < db
		}
		return out[a] < out[b]
	})

	if len(out) > batch {
		out = out[:batch]
	}
	return out
}

func dist(i, from int) int {
	if i < from {
		return from - i
	}
	return i - from
}
