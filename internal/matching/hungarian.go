// Package matching implements the competitive bipartite matcher (C7): a
// hand-rolled Hungarian algorithm plus the confidence-tiering rules that
// consume its assignment.
package matching

import "math"

// SolveAssignment finds a minimum-cost perfect assignment of rows to
// columns for a rectangular cost matrix, using the classic O(n^3)
// Kuhn-Munkres reduction on a padded square matrix. It returns, for each
// row index, the assigned column index, or -1 if the row has no column
// counterpart (padding row/column).
//
// No third-party dependency in the reference corpus implements bipartite
// assignment, so this is intentionally plain Go: an O(n^3) solver is all
// the identification pipeline requires, and the matrices involved here
// never exceed a handful of diarized speakers by a handful of candidate
// names.
func SolveAssignment(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])

	n := rows
	if cols > n {
		n = cols
	}

	const inf = 1e18
	a := make([][]float64, n+1)
	for i := range a {
		a[i] = make([]float64, n+1)
	}
	for i := 1; i <= rows; i++ {
		for j := 1; j <= cols; j++ {
			a[i][j] = cost[i-1][j-1]
		}
		for j := cols + 1; j <= n; j++ {
			a[i][j] = inf
		}
	}
	for i := rows + 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			a[i][j] = inf
		}
	}

	const big = math.MaxFloat64 / 2
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row assigned to column j
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minV := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minV {
			minV[j] = big
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := big
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a[i0][j] - u[i0] - v[j]
				if cur < minV[j] {
					minV[j] = cur
					way[j] = j0
				}
				if minV[j] < delta {
					delta = minV[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minV[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, rows)
	for i := range assignment {
		assignment[i] = -1
	}
	for j := 1; j <= n; j++ {
		row := p[j]
		if row >= 1 && row <= rows && j-1 < cols {
			assignment[row-1] = j - 1
		}
	}
	return assignment
}
