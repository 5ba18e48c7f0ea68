// Package montage computes the grid layout used when tiling image planes
// into a single figure.
package montage

// Grid returns the rows×cols layout for n tiles with at most maxCols tiles
// per row. Fewer tiles than maxCols shrink the grid to a single row.
func Grid(n, maxCols int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	cols = maxCols
	if n < cols {
		cols = n
	}
	rows = (n + cols - 1) / cols
	return rows, cols
}

// DynamicIndices selects which dynamics of a long time series to tile.
// Series of up to 16 frames are shown in full; longer series are subsampled
// every interval frames, with the first and last frame always included so
// the montage spans the whole acquisition.
func DynamicIndices(n, interval int) []int {
	if n <= 0 {
		return nil
	}
	if n <= 16 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	if interval < 1 {
		interval = 8
	}
	var idx []int
	for i := 0; i < n; i += interval {
		idx = append(idx, i)
	}
	if idx[len(idx)-1] != n-1 {
		idx = append(idx, n-1)
	}
	return idx
}
