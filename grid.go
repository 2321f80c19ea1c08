package quakescan

import (
	"errors"
	"fmt"
	"math"
)

// SortOrder fixes how a 3D cell index (i,j,k) ravels into a 1D array index.
type SortOrder int

const (
	RowMajor SortOrder = iota
	ColumnMajor
)

// Grid3D is a regular 3D cell grid anchored in a projected frame. It is an
// immutable value type: mutating any field (centre, geographic anchor,
// rotation) happens through WithCentre/WithGeographicCentre, never in place,
// so cross-cutting setters can't leave the grid in an inconsistent state.
type Grid3D struct {
	CellCount  [3]int
	CellSize   [3]float64
	Azimuth    float64 // radians
	Dip        float64 // radians
	GridCentre [3]float64
	Elevation  float64
	SortOrder  SortOrder
	Projection Projection
}

// Validate checks the positivity invariants a grid must satisfy.
func (g Grid3D) Validate() error {
	for axis, n := range g.CellCount {
		if n <= 0 {
			return errors.Join(ErrConfig, fmt.Errorf("cell_count axis %d must be positive, got %d", axis, n))
		}
	}
	for axis, d := range g.CellSize {
		if d <= 0 {
			return errors.Join(ErrConfig, fmt.Errorf("cell_size axis %d must be positive, got %v", axis, d))
		}
	}
	return g.Projection.Validate()
}

// NCells returns nx*ny*nz.
func (g Grid3D) NCells() int {
	return g.CellCount[0] * g.CellCount[1] * g.CellCount[2]
}

// WithCentre returns a copy of g with the given projected-frame centre. The
// only operations that change GridCentre are WithCentre and
// WithGeographicCentre.
func (g Grid3D) WithCentre(centre [3]float64) Grid3D {
	out := g
	out.GridCentre = centre
	return out
}

// WithGeographicCentre returns a copy of g whose GridCentre is derived from
// (lon, lat, elevation) through g's Projection — the only path for deriving
// grid_centre from a geographic anchor.
func (g Grid3D) WithGeographicCentre(lon, lat, elevation float64) Grid3D {
	x, y := g.Projection.Project(lon, lat)
	out := g
	out.GridCentre = [3]float64{x, y, elevation}
	out.Elevation = elevation
	return out
}

// origin returns the grid's local-frame origin, the corner nearest
// (-x,-y,-z) from the centre, before azimuth/dip rotation is applied.
func (g Grid3D) origin() [3]float64 {
	return [3]float64{
		g.GridCentre[0] - float64(g.CellCount[0]-1)*g.CellSize[0]/2,
		g.GridCentre[1] - float64(g.CellCount[1]-1)*g.CellSize[1]/2,
		g.GridCentre[2] - float64(g.CellCount[2]-1)*g.CellSize[2]/2,
	}
}

// Index2LocalXYZ converts a raveled cell index to its local-frame cell
// position (in cell-count units, not metres), following g.SortOrder.
func (g Grid3D) Index2LocalXYZ(index int) [3]int {
	nx, ny, nz := g.CellCount[0], g.CellCount[1], g.CellCount[2]
	switch g.SortOrder {
	case RowMajor:
		k := index % nz
		j := (index / nz) % ny
		i := index / (nz * ny)
		return [3]int{i, j, k}
	default: // ColumnMajor
		i := index % nx
		j := (index / nx) % ny
		k := index / (nx * ny)
		return [3]int{i, j, k}
	}
}

// LocalXYZ2Index is the inverse of Index2LocalXYZ.
func (g Grid3D) LocalXYZ2Index(ijk [3]int) int {
	nx, ny, nz := g.CellCount[0], g.CellCount[1], g.CellCount[2]
	i, j, k := ijk[0], ijk[1], ijk[2]
	switch g.SortOrder {
	case RowMajor:
		return i*ny*nz + j*nz + k
	default:
		return k*nx*ny + j*nx + i
	}
}

// XYZ2Global converts a cell position (fractional cell-count units allowed)
// to global projected coordinates (metres), applying azimuth/dip rotation
// about GridCentre.
func (g Grid3D) XYZ2Global(xyz [3]float64) [3]float64 {
	o := g.origin()
	local := [3]float64{
		o[0] + xyz[0]*g.CellSize[0],
		o[1] + xyz[1]*g.CellSize[1],
		o[2] + xyz[2]*g.CellSize[2],
	}
	return LocalToGlobal(local, g.GridCentre, g.Azimuth, g.Dip)
}

// Global2XYZ is the inverse of XYZ2Global.
func (g Grid3D) Global2XYZ(global [3]float64) [3]float64 {
	local := GlobalToLocal(global, g.GridCentre, g.Azimuth, g.Dip)
	o := g.origin()
	return [3]float64{
		(local[0] - o[0]) / g.CellSize[0],
		(local[1] - o[1]) / g.CellSize[1],
		(local[2] - o[2]) / g.CellSize[2],
	}
}

// XYZ2Geographic converts a cell position to (lon, lat, elevation).
func (g Grid3D) XYZ2Geographic(xyz [3]float64) (lon, lat, elevation float64) {
	global := g.XYZ2Global(xyz)
	lon, lat = g.Projection.Unproject(global[0], global[1])
	return lon, lat, global[2]
}

// Geographic2XYZ is the inverse of XYZ2Geographic.
func (g Grid3D) Geographic2XYZ(lon, lat, elevation float64) [3]float64 {
	x, y := g.Projection.Project(lon, lat)
	return g.Global2XYZ([3]float64{x, y, elevation})
}

// XYZ2Index snaps a fractional cell position to the nearest integer cell and
// clamps it to the interior, then ravels it. Out-of-grid coordinates clamp
// to the nearest interior cell.
func (g Grid3D) XYZ2Index(xyz [3]float64) int {
	ijk := [3]int{}
	for axis := 0; axis < 3; axis++ {
		v := int(math.Round(xyz[axis]))
		if v < 0 {
			v = 0
		}
		if v > g.CellCount[axis]-1 {
			v = g.CellCount[axis] - 1
		}
		ijk[axis] = v
	}
	return g.LocalXYZ2Index(ijk)
}

// Index2XYZ converts a raveled index back to a cell position in cell-count
// units — the inverse of XYZ2Index's snap-to-cell rounding.
func (g Grid3D) Index2XYZ(index int) [3]float64 {
	ijk := g.Index2LocalXYZ(index)
	return [3]float64{float64(ijk[0]), float64(ijk[1]), float64(ijk[2])}
}

// GridCorners returns the 8 projected corners of the grid volume.
func (g Grid3D) GridCorners() [8][3]float64 {
	nx := float64(g.CellCount[0] - 1)
	ny := float64(g.CellCount[1] - 1)
	nz := float64(g.CellCount[2] - 1)

	var corners [8][3]float64
	i := 0
	for _, x := range []float64{0, nx} {
		for _, y := range []float64{0, ny} {
			for _, z := range []float64{0, nz} {
				corners[i] = g.XYZ2Global([3]float64{x, y, z})
				i++
			}
		}
	}
	return corners
}

// Decimate returns a coarser Grid3D with stride ds per axis:
// new_count = 1 + (old_count-1)/ds (integer division), new_size = old_size*ds,
// and the retained origin offset c1 = (old_count - ds*(new_count-1) - 1)/2
// before the centre is recomputed so the midpoint is preserved to within one
// cell.
func (g Grid3D) Decimate(ds [3]int) (Grid3D, [3]int, error) {
	for axis, d := range ds {
		if d < 1 {
			return Grid3D{}, [3]int{}, errors.Join(ErrConfig, fmt.Errorf("decimate stride axis %d must be >= 1", axis))
		}
	}

	out := g
	var offset [3]int
	for axis := 0; axis < 3; axis++ {
		oldCount := g.CellCount[axis]
		d := ds[axis]
		newCount := 1 + (oldCount-1)/d
		c1 := (oldCount - d*(newCount-1) - 1) / 2

		out.CellCount[axis] = newCount
		out.CellSize[axis] = g.CellSize[axis] * float64(d)
		offset[axis] = c1
	}

	// Recompute centre by mapping the retained centre cell back through the
	// old grid's xyz2loc-inverse equivalent (XYZ2Global), matching
	// `centre = xyz2loc(centre_cell, inverse=True)`.
	centreCell := [3]float64{
		float64(offset[0]) + float64(out.CellCount[0]-1)/2*float64(ds[0]),
		float64(offset[1]) + float64(out.CellCount[1]-1)/2*float64(ds[1]),
		float64(offset[2]) + float64(out.CellCount[2]-1)/2*float64(ds[2]),
	}
	out.GridCentre = g.XYZ2Global(centreCell)

	return out, offset, nil
}
