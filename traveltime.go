package quakescan

import (
	"errors"
	"math"
)

// TravelTimeMethod selects one of the three LUT-construction strategies.
type TravelTimeMethod int

const (
	MethodHomogeneous TravelTimeMethod = iota
	MethodFMM2DSweep
	MethodFMM3D
)

// TravelTimeBuilder constructs a LUT's travel-time maps from a layered
// VelocityModel via one of three strategies: analytic homogeneous,
// 2D fast-marching sweep over (distance, depth), or direct 3D fast
// marching.
type TravelTimeBuilder struct {
	Grid    Grid3D
	Model   VelocityModel
	Method  TravelTimeMethod
	Station Station
}

// Build computes the travel-time volume (flattened, cell-major) for one
// phase at the builder's station.
func (b TravelTimeBuilder) Build(phase Phase) ([]float64, error) {
	if err := b.Model.Validate(); err != nil {
		return nil, err
	}

	switch b.Method {
	case MethodHomogeneous:
		return b.buildHomogeneous(phase)
	case MethodFMM2DSweep:
		return b.buildFMM2DSweep(phase)
	case MethodFMM3D:
		return b.buildFMM3D(phase)
	default:
		return nil, errors.Join(ErrBuild, errors.New("unknown travel-time method"))
	}
}

func (b TravelTimeBuilder) velocityAt(phase Phase, z float64) float64 {
	vp, vs := b.Model.VelocityAt(z)
	if phase == PhaseP {
		return vp
	}
	return vs
}

func (b TravelTimeBuilder) stationGlobal() [3]float64 {
	x, y := b.Grid.Projection.Project(b.Station.Longitude, b.Station.Latitude)
	return [3]float64{x, y, b.Station.Elevation}
}

// buildHomogeneous uses the shallowest layer's velocity as a constant, i.e.
// straight-line distance/velocity from every cell to the station.
func (b TravelTimeBuilder) buildHomogeneous(phase Phase) ([]float64, error) {
	v := b.velocityAt(phase, b.Model.Layers[0].DepthM)
	if v <= 0 {
		return nil, errors.Join(ErrBuild, errors.New("non-positive velocity"))
	}

	station := b.stationGlobal()
	n := b.Grid.NCells()
	out := make([]float64, n)
	for c := 0; c < n; c++ {
		global := b.Grid.XYZ2Global(b.Grid.Index2XYZ(c))
		dx := global[0] - station[0]
		dy := global[1] - station[1]
		dz := global[2] - station[2]
		out[c] = math.Sqrt(dx*dx+dy*dy+dz*dz) / v
	}
	return out, nil
}

// buildFMM2DSweep exploits axial symmetry about the station's vertical
// axis: a 2D (distance, depth) eikonal solve seeds every 3D cell by
// bilinear interpolation at that cell's (epicentral distance, depth) — a
// 1D-layered velocity model solved via a 2D fast-marching sweep.
func (b TravelTimeBuilder) buildFMM2DSweep(phase Phase) ([]float64, error) {
	station := b.stationGlobal()

	// Build a 2D section spanning the grid's horizontal extent (epicentral
	// distance) and vertical extent (depth), at the grid's cell size.
	corners := b.Grid.GridCorners()
	maxDist := 0.0
	minZ, maxZ := corners[0][2], corners[0][2]
	for _, c := range corners {
		dx := c[0] - station[0]
		dy := c[1] - station[1]
		d := math.Hypot(dx, dy)
		if d > maxDist {
			maxDist = d
		}
		if c[2] < minZ {
			minZ = c[2]
		}
		if c[2] > maxZ {
			maxZ = c[2]
		}
	}

	dr := math.Min(b.Grid.CellSize[0], b.Grid.CellSize[1])
	dz := b.Grid.CellSize[2]
	nr := int(maxDist/dr) + 3
	nzSec := int((maxZ-minZ)/dz) + 3

	section, err := b.solveEikonal2D(phase, nr, nzSec, dr, dz, minZ, station[2])
	if err != nil {
		return nil, err
	}

	n := b.Grid.NCells()
	out := make([]float64, n)
	for c := 0; c < n; c++ {
		global := b.Grid.XYZ2Global(b.Grid.Index2XYZ(c))
		dx := global[0] - station[0]
		dy := global[1] - station[1]
		r := math.Hypot(dx, dy)
		z := global[2] - minZ
		out[c] = bilinearInterp2D(section, nr, nzSec, r/dr, z/dz)
	}
	return out, nil
}

// solveEikonal2D runs an expanding fast-marching sweep on a
// (distance, depth) section seeded at the station's depth on the axis.
func (b TravelTimeBuilder) solveEikonal2D(phase Phase, nr, nz int, dr, dz, z0, stationZ float64) ([]float64, error) {
	vel := make([]float64, nr*nz)
	for k := 0; k < nz; k++ {
		z := z0 + float64(k)*dz
		v := b.velocityAt(phase, z)
		if v <= 0 {
			return nil, errors.Join(ErrBuild, errors.New("non-positive velocity in FMM section"))
		}
		for i := 0; i < nr; i++ {
			vel[i*nz+k] = v
		}
	}

	sourceK := int(math.Round((stationZ - z0) / dz))
	if sourceK < 0 || sourceK >= nz {
		return nil, errors.Join(ErrBuild, errors.New("station depth outside FMM section"))
	}

	t := fastMarch2D(vel, nr, nz, dr, dz, 0, sourceK)
	return t, nil
}

// buildFMM3D seeds the front at the cell nearest the station, sets V(x,y,z)
// from the depth-interpolated 1D model, and solves the 3D eikonal directly.
func (b TravelTimeBuilder) buildFMM3D(phase Phase) ([]float64, error) {
	nx, ny, nz := b.Grid.CellCount[0], b.Grid.CellCount[1], b.Grid.CellCount[2]

	// fastMarch3D ravels row-major; work in a row-major shadow grid and map
	// back to b.Grid's own sort order at the end.
	rm := b.Grid
	rm.SortOrder = RowMajor

	vel := make([]float64, nx*ny*nz)
	for c := range vel {
		global := rm.XYZ2Global(rm.Index2XYZ(c))
		v := b.velocityAt(phase, global[2])
		if v <= 0 {
			return nil, errors.Join(ErrBuild, errors.New("non-positive velocity in FMM volume"))
		}
		vel[c] = v
	}

	station := b.stationGlobal()
	sourceCell := rm.XYZ2Index(rm.Global2XYZ(station))
	if sourceCell < 0 || sourceCell >= nx*ny*nz {
		return nil, errors.Join(ErrBuild, errors.New("source station outside grid domain"))
	}

	t := fastMarch3D(vel, nx, ny, nz, b.Grid.CellSize, sourceCell)
	if b.Grid.SortOrder == RowMajor {
		return t, nil
	}
	out := make([]float64, len(t))
	for c := range t {
		out[b.Grid.LocalXYZ2Index(rm.Index2LocalXYZ(c))] = t[c]
	}
	return out, nil
}

// bilinearInterp2D samples a flattened (nr x nz) section at fractional
// (r, z) indices, clamping to the section edges.
func bilinearInterp2D(section []float64, nr, nz int, r, z float64) float64 {
	if r < 0 {
		r = 0
	}
	if z < 0 {
		z = 0
	}
	if r > float64(nr-1) {
		r = float64(nr - 1)
	}
	if z > float64(nz-1) {
		z = float64(nz - 1)
	}

	i0 := int(math.Floor(r))
	k0 := int(math.Floor(z))
	i1, k1 := i0, k0
	if i1 < nr-1 {
		i1++
	}
	if k1 < nz-1 {
		k1++
	}
	alpha := r - float64(i0)
	beta := z - float64(k0)

	c00 := section[i0*nz+k0]
	c10 := section[i1*nz+k0]
	c01 := section[i0*nz+k1]
	c11 := section[i1*nz+k1]

	c0 := c00*(1-alpha) + c10*alpha
	c1 := c01*(1-alpha) + c11*alpha
	return c0*(1-beta) + c1*beta
}
