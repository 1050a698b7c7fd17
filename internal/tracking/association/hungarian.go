package association

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// hungarianAssign solves the rectangular minimum-cost assignment problem
// for a rows×cols cost matrix (Kuhn-Munkres with potentials, the
// Jonker-Volgenant formulation, O(n³)). Entries that are NaN or not
// strictly below limit are forbidden.
//
// It returns assign[i] = column assigned to row i, or -1 when row i is
// left unassigned.
func hungarianAssign(cost *mat.Dense, limit float64) []int {
	n, m := cost.Dims()
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if n == 0 || m == 0 {
		return result
	}

	allowed := func(v float64) bool { return !math.IsNaN(v) && v < limit }

	// Forbidden and padding cells cost more than any assignment made only
	// of allowed cells: the solver maximises the number of allowed matches
	// first and minimises their total cost second.
	maxAllowed := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if v := cost.At(i, j); allowed(v) && v > maxAllowed {
				maxAllowed = v
			}
		}
	}

	dim := n
	if m > dim {
		dim = m
	}
	forbidden := (maxAllowed+1)*float64(dim) + 1

	c := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			v := forbidden
			if i < n && j < m && allowed(cost.At(i, j)) {
				v = cost.At(i, j)
			}
			c.Set(i, j, v)
		}
	}

	// 1-indexed internally; column 0 is the virtual start column.
	inf := math.MaxFloat64 / 2
	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // previous column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row < 0 || row >= n || col >= m {
			continue
		}
		if allowed(cost.At(row, col)) {
			result[row] = col
		}
	}
	return result
}
