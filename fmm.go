package quakescan

import (
	"container/heap"
	"math"
)

// fmmStatus tracks the Tag&Cell algorithm's three node states.
type fmmStatus uint8

const (
	fmmFar fmmStatus = iota
	fmmNarrowBand
	fmmFrozen
)

// fmmNode is one entry in the narrow-band priority queue.
type fmmNode struct {
	index int
	time  float64
}

type fmmHeap []fmmNode

func (h fmmHeap) Len() int            { return len(h) }
func (h fmmHeap) Less(i, j int) bool  { return h[i].time < h[j].time }
func (h fmmHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *fmmHeap) Push(x interface{}) { *h = append(*h, x.(fmmNode)) }
func (h *fmmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// fastMarch2D solves the first-arrival eikonal equation on a (nr x nz)
// section with isotropic slowness 1/vel, seeded at (sourceI, sourceK),
// using a first-order upwind update over a narrow-band priority queue.
func fastMarch2D(vel []float64, nr, nz int, dr, dz float64, sourceI, sourceK int) []float64 {
	n := nr * nz
	t := make([]float64, n)
	status := make([]fmmStatus, n)
	for i := range t {
		t[i] = math.Inf(1)
	}

	idx := func(i, k int) int { return i*nz + k }

	src := idx(sourceI, sourceK)
	t[src] = 0
	status[src] = fmmFrozen

	h := &fmmHeap{}
	heap.Init(h)

	neighbours := func(i, k int) [][2]int {
		out := make([][2]int, 0, 4)
		if i > 0 {
			out = append(out, [2]int{i - 1, k})
		}
		if i < nr-1 {
			out = append(out, [2]int{i + 1, k})
		}
		if k > 0 {
			out = append(out, [2]int{i, k - 1})
		}
		if k < nz-1 {
			out = append(out, [2]int{i, k + 1})
		}
		return out
	}

	update := func(i, k int) {
		id := idx(i, k)
		f := 1.0 / vel[id] // slowness

		txMin := math.Inf(1)
		if i > 0 && status[idx(i-1, k)] == fmmFrozen {
			txMin = math.Min(txMin, t[idx(i-1, k)])
		}
		if i < nr-1 && status[idx(i+1, k)] == fmmFrozen {
			txMin = math.Min(txMin, t[idx(i+1, k)])
		}
		tzMin := math.Inf(1)
		if k > 0 && status[idx(i, k-1)] == fmmFrozen {
			tzMin = math.Min(tzMin, t[idx(i, k-1)])
		}
		if k < nz-1 && status[idx(i, k+1)] == fmmFrozen {
			tzMin = math.Min(tzMin, t[idx(i, k+1)])
		}

		newT := solveUpwind2D(txMin, tzMin, dr, dz, f)
		if newT < t[id] {
			t[id] = newT
			if status[id] != fmmFrozen {
				status[id] = fmmNarrowBand
				heap.Push(h, fmmNode{index: id, time: newT})
			}
		}
	}

	// seed narrow band around source
	si, sk := sourceI, sourceK
	for _, nb := range neighbours(si, sk) {
		update(nb[0], nb[1])
	}

	for h.Len() > 0 {
		node := heap.Pop(h).(fmmNode)
		i, k := node.index/nz, node.index%nz
		if status[node.index] == fmmFrozen {
			continue
		}
		if node.time > t[node.index] {
			continue // stale heap entry
		}
		status[node.index] = fmmFrozen
		for _, nb := range neighbours(i, k) {
			if status[idx(nb[0], nb[1])] != fmmFrozen {
				update(nb[0], nb[1])
			}
		}
	}

	return t
}

// solveUpwind2D solves the quadratic first-order upwind eikonal update
// given the minimum frozen neighbour times along each axis (or +Inf if
// none), cell spacings, and local slowness f = 1/velocity.
func solveUpwind2D(tx, tz, dr, dz, f float64) float64 {
	return solveUpwindN([]float64{tx, tz}, []float64{dr, dz}, f)
}

// solveUpwindN generalizes the upwind quadratic update to N axes: given
// each axis's minimum frozen neighbour arrival time (or +Inf) and spacing,
// solve sum_i (max(0, t - t_i)/h_i)^2 = f^2 for t.
func solveUpwindN(times, spacing []float64, f float64) float64 {
	type axis struct {
		t, h float64
	}
	axes := make([]axis, 0, len(times))
	for i, ti := range times {
		if !math.IsInf(ti, 1) {
			axes = append(axes, axis{t: ti, h: spacing[i]})
		}
	}
	if len(axes) == 0 {
		// no frozen neighbour; fall back to a direct estimate.
		minH := spacing[0]
		for _, h := range spacing[1:] {
			if h < minH {
				minH = h
			}
		}
		return minH * f
	}

	// iteratively drop the axis with the largest t if no solution exists
	// with all axes included (the quadratic's root must exceed every t_i).
	for len(axes) > 0 {
		var a, b, c float64
		for _, ax := range axes {
			inv := 1.0 / (ax.h * ax.h)
			a += inv
			b += ax.t * inv
			c += ax.t * ax.t * inv
		}
		c -= f * f
		disc := b*b - a*c
		if disc < 0 {
			break
		}
		root := (b + math.Sqrt(disc)) / a
		ok := true
		for _, ax := range axes {
			if root < ax.t {
				ok = false
				break
			}
		}
		if ok {
			return root
		}
		// drop the axis with the largest t and retry with fewer axes.
		maxIdx := 0
		for i, ax := range axes {
			if ax.t > axes[maxIdx].t {
				maxIdx = i
			}
		}
		axes = append(axes[:maxIdx], axes[maxIdx+1:]...)
	}

	// single-axis fallback.
	minT := math.Inf(1)
	for i, ti := range times {
		if !math.IsInf(ti, 1) && ti+spacing[i]*f < minT {
			minT = ti + spacing[i]*f
		}
	}
	return minT
}

// fastMarch3D is fastMarch2D generalized to three axes with anisotropic
// cell size, used by TravelTimeBuilder's direct-3D mode.
func fastMarch3D(vel []float64, nx, ny, nz int, cellSize [3]float64, sourceCell int) []float64 {
	n := nx * ny * nz
	t := make([]float64, n)
	status := make([]fmmStatus, n)
	for i := range t {
		t[i] = math.Inf(1)
	}

	idx := func(i, j, k int) int { return i*ny*nz + j*nz + k }
	unravel := func(c int) (int, int, int) {
		k := c % nz
		j := (c / nz) % ny
		i := c / (nz * ny)
		return i, j, k
	}

	t[sourceCell] = 0
	status[sourceCell] = fmmFrozen

	h := &fmmHeap{}
	heap.Init(h)

	neighbours := func(i, j, k int) [][3]int {
		out := make([][3]int, 0, 6)
		if i > 0 {
			out = append(out, [3]int{i - 1, j, k})
		}
		if i < nx-1 {
			out = append(out, [3]int{i + 1, j, k})
		}
		if j > 0 {
			out = append(out, [3]int{i, j - 1, k})
		}
		if j < ny-1 {
			out = append(out, [3]int{i, j + 1, k})
		}
		if k > 0 {
			out = append(out, [3]int{i, j, k - 1})
		}
		if k < nz-1 {
			out = append(out, [3]int{i, j, k + 1})
		}
		return out
	}

	frozenMin := func(i, j, k, di, dj, dk int) float64 {
		ii, jj, kk := i+di, j+dj, k+dk
		if ii < 0 || ii >= nx || jj < 0 || jj >= ny || kk < 0 || kk >= nz {
			return math.Inf(1)
		}
		id := idx(ii, jj, kk)
		if status[id] != fmmFrozen {
			return math.Inf(1)
		}
		return t[id]
	}

	update := func(i, j, k int) {
		id := idx(i, j, k)
		f := 1.0 / vel[id]

		tx := math.Min(frozenMin(i, j, k, -1, 0, 0), frozenMin(i, j, k, 1, 0, 0))
		ty := math.Min(frozenMin(i, j, k, 0, -1, 0), frozenMin(i, j, k, 0, 1, 0))
		tz := math.Min(frozenMin(i, j, k, 0, 0, -1), frozenMin(i, j, k, 0, 0, 1))

		newT := solveUpwindN([]float64{tx, ty, tz}, []float64{cellSize[0], cellSize[1], cellSize[2]}, f)
		if newT < t[id] {
			t[id] = newT
			if status[id] != fmmFrozen {
				status[id] = fmmNarrowBand
				heap.Push(h, fmmNode{index: id, time: newT})
			}
		}
	}

	si, sj, sk := unravel(sourceCell)
	for _, nb := range neighbours(si, sj, sk) {
		update(nb[0], nb[1], nb[2])
	}

	for h.Len() > 0 {
		node := heap.Pop(h).(fmmNode)
		if status[node.index] == fmmFrozen {
			continue
		}
		if node.time > t[node.index] {
			continue
		}
		status[node.index] = fmmFrozen
		i, j, k := unravel(node.index)
		for _, nb := range neighbours(i, j, k) {
			if status[idx(nb[0], nb[1], nb[2])] != fmmFrozen {
				update(nb[0], nb[1], nb[2])
			}
		}
	}

	return t
}
