package quakescan

import "testing"

func simpleLUT() LUT {
	g := Grid3D{
		CellCount:  [3]int{2, 2, 2},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}.WithGeographicCentre(0, 0, 0)

	stations := StationList{{Name: "STA1"}, {Name: "STA2"}}
	l := LUT{Grid3D: g, Stations: stations}
	n := g.NCells()
	l.MapsP = make([]float64, n*len(stations))
	l.MapsS = make([]float64, n*len(stations))

	// station 0's travel time equals the cell's raveled index, so
	// trilinear interpolation at integer corners is exact and easy to check.
	for c := 0; c < n; c++ {
		l.MapsP[c*len(stations)+0] = float64(c)
		l.MapsS[c*len(stations)+0] = float64(c) * 2
	}
	return l
}

func TestLUTValueAtCorners(t *testing.T) {
	l := simpleLUT()
	for idx := 0; idx < l.NCells(); idx++ {
		ijk := l.Index2LocalXYZ(idx)
		xyz := [3]float64{float64(ijk[0]), float64(ijk[1]), float64(ijk[2])}
		got := l.ValueAt(PhaseP, 0, xyz)
		if got != float64(idx) {
			t.Errorf("ValueAt(%v) = %v, want %v", xyz, got, idx)
		}
	}
}

func TestLUTValueAtOutOfGridIsNaN(t *testing.T) {
	l := simpleLUT()
	got := l.ValueAt(PhaseP, 0, [3]float64{-1, 0, 0})
	if got == got { // NaN != NaN
		t.Fatalf("ValueAt out-of-grid = %v, want NaN", got)
	}
}

func TestLUTFetchIndexRounds(t *testing.T) {
	l := simpleLUT()
	idx := l.FetchIndex(PhaseP, 10.0)
	ns := len(l.Stations)
	for c := 0; c < l.NCells(); c++ {
		if got := idx[c*ns+0]; got != int32(c*10) {
			t.Errorf("FetchIndex station 0 cell %d = %d, want %d", c, got, c*10)
		}
		if got := idx[c*ns+1]; got != 0 {
			t.Errorf("FetchIndex station 1 cell %d = %d, want 0", c, got)
		}
	}
}

func TestLUTDecimate(t *testing.T) {
	l := simpleLUT()
	dec, err := l.Decimate([3]int{2, 2, 2})
	if err != nil {
		t.Fatalf("Decimate: %v", err)
	}
	if dec.NCells() != 1 {
		t.Fatalf("decimated NCells = %d, want 1", dec.NCells())
	}
	if err := dec.Validate(); err != nil {
		t.Fatalf("decimated LUT invalid: %v", err)
	}
}

func TestLUTValidateRejectsShapeMismatch(t *testing.T) {
	l := simpleLUT()
	l.MapsP = l.MapsP[:len(l.MapsP)-1]
	if err := l.Validate(); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestComputeHomogeneousVmodel(t *testing.T) {
	l := simpleLUT()
	if err := l.ComputeHomogeneousVmodel(1000, 500); err != nil {
		t.Fatalf("ComputeHomogeneousVmodel: %v", err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("LUT invalid after homogeneous fill: %v", err)
	}
	for i, p := range l.MapsP {
		if p < 0 {
			t.Errorf("MapsP[%d] = %v, want >= 0", i, p)
		}
	}
}

func TestComputeHomogeneousVmodelRejectsNonPositive(t *testing.T) {
	l := simpleLUT()
	if err := l.ComputeHomogeneousVmodel(0, 500); err == nil {
		t.Fatal("expected error for non-positive vp")
	}
}
