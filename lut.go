package quakescan

import (
	"errors"
	"fmt"
	"math"
)

// Phase selects which travel-time volume a LUT operation addresses.
type Phase int

const (
	PhaseP Phase = iota
	PhaseS
)

// LUT extends Grid3D with per-station travel-time volumes for the P and S
// phases. Maps are stored flattened, cell-major then station-fastest, i.e.
// Maps[phase][cellIndex*nStations+stationIndex].
type LUT struct {
	Grid3D
	Stations StationList
	MapsP    []float64 // len = NCells() * len(Stations)
	MapsS    []float64
}

// Validate checks the array-shape and non-negativity invariants MapsP and
// MapsS must satisfy.
func (l LUT) Validate() error {
	if err := l.Grid3D.Validate(); err != nil {
		return err
	}
	if err := l.Stations.Validate(); err != nil {
		return err
	}
	want := l.NCells() * len(l.Stations)
	if len(l.MapsP) != want || len(l.MapsS) != want {
		return errors.Join(ErrShape, fmt.Errorf("travel-time maps have %d/%d entries, want %d", len(l.MapsP), len(l.MapsS), want))
	}
	// NaN entries are permitted only as explicit out-of-domain sentinels;
	// negative or infinite values are never valid travel times.
	for _, m := range [][]float64{l.MapsP, l.MapsS} {
		for _, v := range m {
			if !math.IsNaN(v) && (v < 0 || math.IsInf(v, 0)) {
				return errors.Join(ErrShape, errors.New("travel-time map has a negative or infinite entry"))
			}
		}
	}
	return nil
}

func (l LUT) mapFor(phase Phase) []float64 {
	if phase == PhaseP {
		return l.MapsP
	}
	return l.MapsS
}

// FetchMap returns the raw 3D volume (flattened, cell-major) for one
// station and phase.
func (l LUT) FetchMap(phase Phase, station int) []float64 {
	n := l.NCells()
	ns := len(l.Stations)
	m := l.mapFor(phase)
	out := make([]float64, n)
	for c := 0; c < n; c++ {
		out[c] = m[c*ns+station]
	}
	return out
}

// ValueAt performs trilinear interpolation of the travel-time volume for
// (phase, station) at a fractional cell position: for a query at
// (i+alpha, j+beta, k+gamma) with alpha,beta,gamma in [0,1), interpolate the
// 8 surrounding lattice points. Out-of-grid queries return NaN.
func (l LUT) ValueAt(phase Phase, station int, xyz [3]float64) float64 {
	nx, ny, nz := l.CellCount[0], l.CellCount[1], l.CellCount[2]
	x, y, z := xyz[0], xyz[1], xyz[2]

	if x < 0 || y < 0 || z < 0 || x > float64(nx-1) || y > float64(ny-1) || z > float64(nz-1) {
		return math.NaN()
	}

	i0 := int(math.Floor(x))
	j0 := int(math.Floor(y))
	k0 := int(math.Floor(z))
	i1, j1, k1 := i0, j0, k0
	if i1 < nx-1 {
		i1++
	}
	if j1 < ny-1 {
		j1++
	}
	if k1 < nz-1 {
		k1++
	}

	alpha := x - float64(i0)
	beta := y - float64(j0)
	gamma := z - float64(k0)

	at := func(i, j, k int) float64 {
		idx := l.LocalXYZ2Index([3]int{i, j, k})
		return l.mapFor(phase)[idx*len(l.Stations)+station]
	}

	c000, c100 := at(i0, j0, k0), at(i1, j0, k0)
	c010, c110 := at(i0, j1, k0), at(i1, j1, k0)
	c001, c101 := at(i0, j0, k1), at(i1, j0, k1)
	c011, c111 := at(i0, j1, k1), at(i1, j1, k1)

	c00 := c000*(1-alpha) + c100*alpha
	c10 := c010*(1-alpha) + c110*alpha
	c01 := c001*(1-alpha) + c101*alpha
	c11 := c011*(1-alpha) + c111*alpha

	c0 := c00*(1-beta) + c10*beta
	c1 := c01*(1-beta) + c11*beta

	return c0*(1-gamma) + c1*gamma
}

// FetchIndex returns integer sample offsets for every (cell, station) pair
// of one phase: round(samplingRate * travelTime). Rounds to nearest, never
// truncates; truncating biases every stack index low by up to half a sample.
func (l LUT) FetchIndex(phase Phase, samplingRate float64) []int32 {
	m := l.mapFor(phase)
	out := make([]int32, len(m))
	for i, t := range m {
		out[i] = int32(math.Round(samplingRate * t))
	}
	return out
}

// Decimate downsamples the LUT's travel-time maps with stride ds, reusing
// Grid3D.Decimate for the coarser grid and retained-origin offset, then
// resampling MapsP/MapsS starting at that offset (preserving the station
// dimension).
func (l LUT) Decimate(ds [3]int) (LUT, error) {
	newGrid, offset, err := l.Grid3D.Decimate(ds)
	if err != nil {
		return LUT{}, err
	}

	ns := len(l.Stations)
	newN := newGrid.NCells()
	out := LUT{
		Grid3D:   newGrid,
		Stations: l.Stations,
		MapsP:    make([]float64, newN*ns),
		MapsS:    make([]float64, newN*ns),
	}

	for newIdx := 0; newIdx < newN; newIdx++ {
		ijkNew := newGrid.Index2LocalXYZ(newIdx)
		ijkOld := [3]int{
			offset[0] + ijkNew[0]*ds[0],
			offset[1] + ijkNew[1]*ds[1],
			offset[2] + ijkNew[2]*ds[2],
		}
		oldIdx := l.LocalXYZ2Index(ijkOld)
		for s := 0; s < ns; s++ {
			out.MapsP[newIdx*ns+s] = l.MapsP[oldIdx*ns+s]
			out.MapsS[newIdx*ns+s] = l.MapsS[oldIdx*ns+s]
		}
	}

	return out, nil
}

// ComputeHomogeneousVmodel fills MapsP/MapsS from a single (vp, vs) pair
// using the straight-line distance/velocity formula.
func (l *LUT) ComputeHomogeneousVmodel(vp, vs float64) error {
	if vp <= 0 || vs <= 0 {
		return errors.Join(ErrBuild, errors.New("homogeneous velocity must be positive"))
	}

	n := l.NCells()
	ns := len(l.Stations)
	l.MapsP = make([]float64, n*ns)
	l.MapsS = make([]float64, n*ns)

	for c := 0; c < n; c++ {
		xyz := l.Index2XYZ(c)
		global := l.XYZ2Global(xyz)
		for s, st := range l.Stations {
			sx, sy := l.Projection.Project(st.Longitude, st.Latitude)
			dx := global[0] - sx
			dy := global[1] - sy
			dz := global[2] - st.Elevation
			dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
			l.MapsP[c*ns+s] = dist / vp
			l.MapsS[c*ns+s] = dist / vs
		}
	}

	return nil
}
