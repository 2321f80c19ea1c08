package quakescan

import "testing"

func testGrid() Grid3D {
	return Grid3D{
		CellCount:  [3]int{3, 4, 5},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}.WithGeographicCentre(0, 0, 0)
}

func TestGrid3DIndexRoundTrip(t *testing.T) {
	g := testGrid()
	for idx := 0; idx < g.NCells(); idx++ {
		ijk := g.Index2LocalXYZ(idx)
		back := g.LocalXYZ2Index(ijk)
		if back != idx {
			t.Fatalf("index %d -> %v -> %d, want round trip", idx, ijk, back)
		}
	}
}

func TestGrid3DXYZGlobalRoundTrip(t *testing.T) {
	g := testGrid()
	xyz := [3]float64{1.25, 2.5, 3.75}
	global := g.XYZ2Global(xyz)
	back := g.Global2XYZ(global)
	for axis := 0; axis < 3; axis++ {
		if diff := back[axis] - xyz[axis]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("axis %d: %v -> %v -> %v, want round trip", axis, xyz, global, back)
		}
	}
}

func TestGrid3DValidateRejectsNonPositive(t *testing.T) {
	g := testGrid()
	g.CellCount[1] = 0
	if err := g.Validate(); err == nil {
		t.Fatal("expected error for zero cell count")
	}

	g = testGrid()
	g.CellSize[2] = -1
	if err := g.Validate(); err == nil {
		t.Fatal("expected error for negative cell size")
	}
}

func TestGrid3DDecimatePreservesCentre(t *testing.T) {
	g := Grid3D{
		CellCount:  [3]int{11, 11, 11},
		CellSize:   [3]float64{100, 100, 100},
		SortOrder:  RowMajor,
		Projection: Projection{Kind: ProjectionWGS84},
	}.WithGeographicCentre(0, 0, 0)

	dec, offset, err := g.Decimate([3]int{2, 2, 2})
	if err != nil {
		t.Fatalf("Decimate: %v", err)
	}
	if dec.CellCount != [3]int{6, 6, 6} {
		t.Fatalf("decimated cell count = %v, want {6,6,6}", dec.CellCount)
	}
	if offset != ([3]int{0, 0, 0}) {
		t.Fatalf("decimated offset = %v, want {0,0,0}", offset)
	}
	for axis, v := range dec.GridCentre {
		if v > 1e-6 || v < -1e-6 {
			t.Errorf("axis %d centre = %v, want ~0", axis, v)
		}
	}
}

func TestGrid3DDecimateRejectsZeroStride(t *testing.T) {
	g := testGrid()
	if _, _, err := g.Decimate([3]int{0, 1, 1}); err == nil {
		t.Fatal("expected error for zero stride")
	}
}
