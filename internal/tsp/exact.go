package tsp

import "math"

// SolveExact finds the optimal closed tour by Held-Karp dynamic programming.
//
// State (mask, u) holds the cheapest cost of leaving start, visiting exactly
// the indices in mask and ending at u. Tables are flat arrays indexed by
// mask*n+u and belong to this call only. Time O(N²·2ᴺ), space O(N·2ᴺ).
func SolveExact(m [][]float64, start int) (*Result, error) {
	if err := Validate(m, start); err != nil {
		return nil, err
	}
	n := len(m)
	if n <= 2 {
		r := trivial(m, start)
		return &r, nil
	}
	if n > MaxExactSize {
		return nil, ErrTooLarge
	}

	states := 1 << n
	cost := make([]float64, states*n)
	parent := make([]int8, states*n)
	for i := range cost {
		cost[i] = math.Inf(1)
		parent[i] = -1
	}

	startBit := 1 << start
	cost[startBit*n+start] = 0

	for mask := startBit; mask < states; mask++ {
		if mask&startBit == 0 {
			continue
		}
		for u := 0; u < n; u++ {
			if mask&(1<<u) == 0 {
				continue
			}
			base := cost[mask*n+u]
			if math.IsInf(base, 1) {
				continue
			}
			for v := 0; v < n; v++ {
				if mask&(1<<v) != 0 {
					continue
				}
				next := mask | 1<<v
				candidate := base + m[u][v]
				if candidate < cost[next*n+v] {
					cost[next*n+v] = candidate
					parent[next*n+v] = int8(u)
				}
			}
		}
	}

	full := states - 1
	best := math.Inf(1)
	last := -1
	for u := 0; u < n; u++ {
		if u == start {
			continue
		}
		closed := cost[full*n+u] + m[u][start]
		if closed < best {
			best = closed
			last = u
		}
	}
	if last < 0 {
		return nil, &ErrInvalidMatrix{Reason: "no finite tour exists"}
	}

	tour := make([]int, 0, n)
	mask := full
	for curr := last; curr != -1; {
		tour = append(tour, curr)
		prev := int(parent[mask*n+curr])
		mask ^= 1 << curr
		curr = prev
	}
	for i, j := 0, len(tour)-1; i < j; i, j = i+1, j-1 {
		tour[i], tour[j] = tour[j], tour[i]
	}

	return &Result{Cost: TourCost(m, tour), Tour: tour, Method: MethodExact}, nil
}
