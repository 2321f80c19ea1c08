package quakescan

import (
	"math"
	"testing"
)

func travelTimeTestGrid() Grid3D {
	return Grid3D{
		CellCount:  [3]int{11, 11, 11},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionUTM, Zone: 31},
	}.WithCentre([3]float64{0, 0, 0})
}

func constantModel(vp, vs float64) VelocityModel {
	return VelocityModel{Layers: []VelocityLayer{{DepthM: 0, VpMS: vp, VsMS: vs}}}
}

// builderAt places a station at the grid centre by working around
// the projection: Project(lon, lat) must land on (0, 0), which a zero-offset
// WGS84-style passthrough cannot give for UTM, so the test grid centre is
// set to the station's projected position instead.
func builderAt(g Grid3D, model VelocityModel, method TravelTimeMethod) TravelTimeBuilder {
	st := Station{Name: "STA1", Longitude: 3, Latitude: 0, Elevation: 0}
	x, y := g.Projection.Project(st.Longitude, st.Latitude)
	g = g.WithCentre([3]float64{x, y, 0})
	return TravelTimeBuilder{Grid: g, Model: model, Method: method, Station: st}
}

func TestBuildHomogeneousMatchesAnalyticDistance(t *testing.T) {
	const vp, vs = 5000.0, 3000.0
	b := builderAt(travelTimeTestGrid(), constantModel(vp, vs), MethodHomogeneous)

	times, err := b.Build(PhaseP)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	station := b.stationGlobal()
	for c := 0; c < b.Grid.NCells(); c++ {
		global := b.Grid.XYZ2Global(b.Grid.Index2XYZ(c))
		dx := global[0] - station[0]
		dy := global[1] - station[1]
		dz := global[2] - station[2]
		want := math.Sqrt(dx*dx+dy*dy+dz*dz) / vp
		if want == 0 {
			if times[c] != 0 {
				t.Fatalf("cell %d: t = %v, want 0 at the station cell", c, times[c])
			}
			continue
		}
		if rel := math.Abs(times[c]-want) / want; rel > 1e-6 {
			t.Fatalf("cell %d: t = %v, want %v (rel err %v)", c, times[c], want, rel)
		}
	}
}

func TestBuildRejectsNonPositiveVelocity(t *testing.T) {
	b := builderAt(travelTimeTestGrid(), constantModel(-1, 500), MethodHomogeneous)
	if _, err := b.Build(PhaseP); err == nil {
		t.Fatal("expected error for negative velocity")
	}
}

func TestFastMarch2DConstantVelocityApproximatesStraightRay(t *testing.T) {
	const v = 4000.0
	nr, nz := 30, 30
	dr, dz := 100.0, 100.0
	vel := make([]float64, nr*nz)
	for i := range vel {
		vel[i] = v
	}

	times := fastMarch2D(vel, nr, nz, dr, dz, 0, 0)

	// the source itself is exactly zero.
	if times[0] != 0 {
		t.Fatalf("source time = %v, want 0", times[0])
	}

	// along the axes the first-order upwind solution is exact.
	for i := 1; i < nr; i++ {
		want := float64(i) * dr / v
		if got := times[i*nz]; math.Abs(got-want) > 1e-9 {
			t.Fatalf("axis cell %d: t = %v, want %v", i, got, want)
		}
	}

	// off-axis the scheme overestimates, but stays within the usual
	// first-order bound for a constant-velocity medium.
	for i := 0; i < nr; i++ {
		for k := 0; k < nz; k++ {
			r := math.Hypot(float64(i)*dr, float64(k)*dz)
			if r == 0 {
				continue
			}
			want := r / v
			got := times[i*nz+k]
			if got < want-1e-9 {
				t.Fatalf("(%d,%d): t = %v below the causal bound %v", i, k, got, want)
			}
			if got > want*1.25 {
				t.Fatalf("(%d,%d): t = %v, more than 25%% above %v", i, k, got, want)
			}
		}
	}
}

func TestBuildFMM3DStaysCausal(t *testing.T) {
	const vp, vs = 5000.0, 3000.0
	g := Grid3D{
		CellCount:  [3]int{7, 7, 7},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionUTM, Zone: 31},
	}
	b := builderAt(g, constantModel(vp, vs), MethodFMM3D)

	times, err := b.Build(PhaseP)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	station := b.stationGlobal()
	for c := 0; c < b.Grid.NCells(); c++ {
		global := b.Grid.XYZ2Global(b.Grid.Index2XYZ(c))
		dx := global[0] - station[0]
		dy := global[1] - station[1]
		dz := global[2] - station[2]
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if d == 0 {
			continue
		}
		if times[c] < d/vp-1e-9 {
			t.Fatalf("cell %d: t = %v below the causal bound %v", c, times[c], d/vp)
		}
		if math.IsInf(times[c], 0) || math.IsNaN(times[c]) {
			t.Fatalf("cell %d: t = %v, want finite", c, times[c])
		}
	}
}

func TestBuildFMM2DSweepMatchesHomogeneousCoarsely(t *testing.T) {
	const vp, vs = 5000.0, 3000.0
	b2 := builderAt(travelTimeTestGrid(), constantModel(vp, vs), MethodFMM2DSweep)
	bh := builderAt(travelTimeTestGrid(), constantModel(vp, vs), MethodHomogeneous)

	sweep, err := b2.Build(PhaseP)
	if err != nil {
		t.Fatalf("Build sweep: %v", err)
	}
	exact, err := bh.Build(PhaseP)
	if err != nil {
		t.Fatalf("Build homogeneous: %v", err)
	}

	for c := range sweep {
		if exact[c] == 0 {
			continue
		}
		if rel := math.Abs(sweep[c]-exact[c]) / exact[c]; rel > 0.3 {
			t.Fatalf("cell %d: sweep %v vs analytic %v (rel err %v)", c, sweep[c], exact[c], rel)
		}
	}
}
