package quakescan

import (
	"math"
	"testing"
)

func closeEnough(a, b, tol float64) bool {
	d := a - b
	return d < tol && d > -tol
}

func TestUTMZoneKnownValues(t *testing.T) {
	cases := []struct {
		lon  float64
		zone int
	}{
		{0, 31},
		{-180, 1},
		{179.9, 60},
		{-3, 30},
	}
	for _, c := range cases {
		if got := UTMZone(c.lon); got != c.zone {
			t.Errorf("UTMZone(%v) = %d, want %d", c.lon, got, c.zone)
		}
	}
}

func TestProjectionWGS84PassesThrough(t *testing.T) {
	p := Projection{Kind: ProjectionWGS84}
	x, y := p.Project(12.5, -33.2)
	if x != 12.5 || y != -33.2 {
		t.Errorf("WGS84 Project = (%v,%v), want (12.5,-33.2)", x, y)
	}
	lon, lat := p.Unproject(x, y)
	if lon != 12.5 || lat != -33.2 {
		t.Errorf("WGS84 Unproject = (%v,%v), want (12.5,-33.2)", lon, lat)
	}
}

func TestProjectionUTMRoundTrip(t *testing.T) {
	p := NewUTM(-120)
	lon0, lat0 := -120.3, 45.1
	x, y := p.Project(lon0, lat0)
	lon, lat := p.Unproject(x, y)
	if !closeEnough(lon, lon0, 1e-6) || !closeEnough(lat, lat0, 1e-6) {
		t.Errorf("UTM round trip = (%v,%v), want (%v,%v)", lon, lat, lon0, lat0)
	}
}

func TestProjectionTMRoundTrip(t *testing.T) {
	p := NewTM(10, 50)
	lon0, lat0 := 10.2, 50.4
	x, y := p.Project(lon0, lat0)
	lon, lat := p.Unproject(x, y)
	if !closeEnough(lon, lon0, 1e-6) || !closeEnough(lat, lat0, 1e-6) {
		t.Errorf("TM round trip = (%v,%v), want (%v,%v)", lon, lat, lon0, lat0)
	}
}

func TestProjectionLCCRoundTrip(t *testing.T) {
	p := NewLCC(-96, 23, 29.5, 45.5)
	lon0, lat0 := -95.0, 30.0
	x, y := p.Project(lon0, lat0)
	lon, lat := p.Unproject(x, y)
	if !closeEnough(lon, lon0, 1e-6) || !closeEnough(lat, lat0, 1e-6) {
		t.Errorf("LCC round trip = (%v,%v), want (%v,%v)", lon, lat, lon0, lat0)
	}
}

func TestProjectionValidateRejectsBadUTMZone(t *testing.T) {
	p := Projection{Kind: ProjectionUTM, Zone: 0}
	if err := p.Validate(); err == nil {
		t.Error("expected error for UTM zone 0")
	}
	p.Zone = 61
	if err := p.Validate(); err == nil {
		t.Error("expected error for UTM zone 61")
	}
}

func TestProjectionValidateRejectsEqualLCCParallels(t *testing.T) {
	p := NewLCC(0, 0, 30, 30)
	if err := p.Validate(); err == nil {
		t.Error("expected error for equal LCC standard parallels")
	}
}

func TestCartSphRoundTrip(t *testing.T) {
	x0, y0, z0 := 3.0, -4.0, 5.0
	theta, phi, r := cart2sph(x0, y0, z0)
	x, y, z := sph2cart(theta, phi, r)
	if !closeEnough(x, x0, 1e-9) || !closeEnough(y, y0, 1e-9) || !closeEnough(z, z0, 1e-9) {
		t.Errorf("cart2sph/sph2cart round trip = (%v,%v,%v), want (%v,%v,%v)", x, y, z, x0, y0, z0)
	}
}

func TestLocalToGlobalGlobalToLocalInverse(t *testing.T) {
	centre := [3]float64{100, 200, 50}
	xyz := [3]float64{110, 220, 60}
	azimuth, dip := 0.3, 0.1

	global := LocalToGlobal(xyz, centre, azimuth, dip)
	back := GlobalToLocal(global, centre, azimuth, dip)

	for i := 0; i < 3; i++ {
		if !closeEnough(back[i], xyz[i], 1e-6) {
			t.Errorf("axis %d: round trip = %v, want %v", i, back[i], xyz[i])
		}
	}
}

func TestLocalToGlobalNoRotationIsIdentityOffset(t *testing.T) {
	centre := [3]float64{0, 0, 0}
	xyz := [3]float64{5, 0, 0}
	got := LocalToGlobal(xyz, centre, 0, 0)
	if !closeEnough(got[0], 5, 1e-9) || math.Abs(got[1]) > 1e-9 || math.Abs(got[2]) > 1e-9 {
		t.Errorf("LocalToGlobal with zero rotation = %v, want (5,0,0)", got)
	}
}
