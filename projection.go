package quakescan

import (
	"errors"
	"fmt"
	"math"
)

// ProjectionKind tags which planar projection family a Projection uses.
type ProjectionKind int

const (
	ProjectionWGS84 ProjectionKind = iota
	ProjectionNAD27
	ProjectionUTM
	ProjectionLCC
	ProjectionTM
)

// Projection is a tagged variant over the supported planar projection
// families: WGS84/NAD27 pass geographic coordinates through unscaled, UTM
// picks its zone from a reference longitude, and LCC/TM carry the parameters
// their forward transforms need.
type Projection struct {
	Kind ProjectionKind

	// UTM
	Zone int

	// LCC / TM
	Lon0 float64
	Lat0 float64
	P1   float64 // LCC first standard parallel
	P2   float64 // LCC second standard parallel
}

// wgs84 ellipsoid constants (semi-major axis, flattening). The planar
// families below are spherical and use only the semi-major axis.
const (
	wgs84A = 6378137.0
	wgs84F = 1.0 / 298.257223563
)

// UTMZone picks the UTM zone number for a reference longitude.
func UTMZone(lon float64) int {
	return int(math.Floor((lon+180)/6)) + 1
}

// NewUTM constructs a UTM Projection whose zone is derived from lon.
func NewUTM(lon float64) Projection {
	return Projection{Kind: ProjectionUTM, Zone: UTMZone(lon)}
}

// NewLCC constructs a Lambert Conformal Conic Projection.
func NewLCC(lon0, lat0, p1, p2 float64) Projection {
	return Projection{Kind: ProjectionLCC, Lon0: lon0, Lat0: lat0, P1: p1, P2: p2}
}

// NewTM constructs a Transverse Mercator Projection with central meridian
// lon0. lat0 is stored and range-checked by Validate, but Project and
// Unproject do not use it: northings are measured from the equator.
func NewTM(lon0, lat0 float64) Projection {
	return Projection{Kind: ProjectionTM, Lon0: lon0, Lat0: lat0}
}

// Validate checks that the parameters attached to a Projection make sense
// for its Kind, returning ErrConfig otherwise.
func (p Projection) Validate() error {
	switch p.Kind {
	case ProjectionWGS84, ProjectionNAD27:
		return nil
	case ProjectionUTM:
		if p.Zone < 1 || p.Zone > 60 {
			return errors.Join(ErrConfig, fmt.Errorf("invalid UTM zone %d", p.Zone))
		}
	case ProjectionLCC:
		if p.P1 == p.P2 {
			return errors.Join(ErrConfig, errors.New("LCC standard parallels must differ"))
		}
	case ProjectionTM:
		// lon0/lat0 are free parameters; nothing to check beyond range.
		if p.Lat0 < -90 || p.Lat0 > 90 {
			return errors.Join(ErrConfig, fmt.Errorf("invalid TM lat0 %v", p.Lat0))
		}
	default:
		return errors.Join(ErrConfig, fmt.Errorf("unknown projection kind %d", p.Kind))
	}
	return nil
}

// Project converts geographic coordinates (lon, lat in degrees) to the
// projection's local Cartesian frame in metres.
func (p Projection) Project(lon, lat float64) (x, y float64) {
	switch p.Kind {
	case ProjectionWGS84, ProjectionNAD27:
		return lon, lat
	case ProjectionUTM:
		return projectTM(lon, lat, float64(p.Zone)*6-183, 0.9996, 500000, 0)
	case ProjectionTM:
		return projectTM(lon, lat, p.Lon0, 1.0, 0, 0)
	case ProjectionLCC:
		return projectLCC(lon, lat, p.Lon0, p.Lat0, p.P1, p.P2)
	default:
		return math.NaN(), math.NaN()
	}
}

// Unproject converts a local Cartesian (x, y) in metres back to geographic
// coordinates (lon, lat in degrees).
func (p Projection) Unproject(x, y float64) (lon, lat float64) {
	switch p.Kind {
	case ProjectionWGS84, ProjectionNAD27:
		return x, y
	case ProjectionUTM:
		return unprojectTM(x, y, float64(p.Zone)*6-183, 0.9996, 500000, 0)
	case ProjectionTM:
		return unprojectTM(x, y, p.Lon0, 1.0, 0, 0)
	case ProjectionLCC:
		return unprojectLCC(x, y, p.Lon0, p.Lat0, p.P1, p.P2)
	default:
		return math.NaN(), math.NaN()
	}
}

// projectTM is a spherical transverse-Mercator forward transform, used by
// both the UTM and plain-TM families (they differ only in scale/false
// easting and the zone-derived central meridian).
func projectTM(lon, lat, lon0, k0, falseEasting, falseNorthing float64) (x, y float64) {
	const deg2rad = math.Pi / 180.0
	lamda := (lon - lon0) * deg2rad
	phi := lat * deg2rad

	b := math.Cos(phi) * math.Sin(lamda)
	x = falseEasting + k0*wgs84A*0.5*math.Log((1+b)/(1-b))
	y = falseNorthing + k0*wgs84A*(math.Atan2(math.Tan(phi), math.Cos(lamda))-0)
	return x, y
}

func unprojectTM(x, y, lon0, k0, falseEasting, falseNorthing float64) (lon, lat float64) {
	const rad2deg = 180.0 / math.Pi
	d := (y - falseNorthing) / (k0 * wgs84A)
	xp := (x - falseEasting) / (k0 * wgs84A)

	phi := math.Asin(math.Sin(d) / math.Cosh(xp))
	lamda := math.Atan2(math.Sinh(xp), math.Cos(d))

	lat = phi * rad2deg
	lon = lon0 + lamda*rad2deg
	return lon, lat
}

// projectLCC is a spherical Lambert Conformal Conic forward transform with
// two standard parallels.
func projectLCC(lon, lat, lon0, lat0, p1, p2 float64) (x, y float64) {
	const deg2rad = math.Pi / 180.0
	phi := lat * deg2rad
	phi0 := lat0 * deg2rad
	phi1 := p1 * deg2rad
	phi2 := p2 * deg2rad
	lamda := lon * deg2rad
	lamda0 := lon0 * deg2rad

	var n float64
	if math.Abs(phi1-phi2) < 1e-12 {
		n = math.Sin(phi1)
	} else {
		n = math.Log(math.Cos(phi1)/math.Cos(phi2)) /
			math.Log(math.Tan(math.Pi/4+phi2/2)/math.Tan(math.Pi/4+phi1/2))
	}

	f := math.Cos(phi1) * math.Pow(math.Tan(math.Pi/4+phi1/2), n) / n
	rho := wgs84A * f / math.Pow(math.Tan(math.Pi/4+phi/2), n)
	rho0 := wgs84A * f / math.Pow(math.Tan(math.Pi/4+phi0/2), n)

	theta := n * (lamda - lamda0)

	x = rho * math.Sin(theta)
	y = rho0 - rho*math.Cos(theta)
	return x, y
}

func unprojectLCC(x, y, lon0, lat0, p1, p2 float64) (lon, lat float64) {
	const deg2rad = math.Pi / 180.0
	const rad2deg = 180.0 / math.Pi
	phi0 := lat0 * deg2rad
	phi1 := p1 * deg2rad
	phi2 := p2 * deg2rad
	lamda0 := lon0 * deg2rad

	var n float64
	if math.Abs(phi1-phi2) < 1e-12 {
		n = math.Sin(phi1)
	} else {
		n = math.Log(math.Cos(phi1)/math.Cos(phi2)) /
			math.Log(math.Tan(math.Pi/4+phi2/2)/math.Tan(math.Pi/4+phi1/2))
	}

	f := math.Cos(phi1) * math.Pow(math.Tan(math.Pi/4+phi1/2), n) / n
	rho0 := wgs84A * f / math.Pow(math.Tan(math.Pi/4+phi0/2), n)

	rho := math.Copysign(math.Hypot(x, rho0-y), n)
	theta := math.Atan2(x, rho0-y)

	phi := 2*math.Atan(math.Pow(wgs84A*f/rho, 1/n)) - math.Pi/2
	lamda := theta/n + lamda0

	lat = phi * rad2deg
	lon = lamda * rad2deg
	return lon, lat
}

// cart2sph converts Cartesian (x,y,z) to spherical (theta, phi, r): theta
// is the polar angle from the z-axis, phi the azimuthal angle in the xy
// plane.
func cart2sph(x, y, z float64) (theta, phi, r float64) {
	r = math.Sqrt(x*x + y*y + z*z)
	if r == 0 {
		return 0, 0, 0
	}
	theta = math.Acos(z / r)
	phi = math.Atan2(y, x)
	return theta, phi, r
}

// sph2cart is the inverse of cart2sph.
func sph2cart(theta, phi, r float64) (x, y, z float64) {
	x = r * math.Sin(theta) * math.Cos(phi)
	y = r * math.Sin(theta) * math.Sin(phi)
	z = r * math.Cos(theta)
	return x, y, z
}

// LocalToGlobal rotates a point given in the grid's local frame into the
// global projected frame by azimuth (about the vertical axis) and dip
// (about the horizontal axis), both in radians, pivoting about centre:
// convert (xyz-centre) to spherical, add (azimuth, dip, 0), convert back,
// re-add centre.
func LocalToGlobal(xyz [3]float64, centre [3]float64, azimuth, dip float64) [3]float64 {
	dx, dy, dz := xyz[0]-centre[0], xyz[1]-centre[1], xyz[2]-centre[2]
	theta, phi, r := cart2sph(dx, dy, dz)
	// theta is colatitude (pi/2 - elevation); dip acts on the elevation
	// angle, so increasing elevation means decreasing colatitude.
	theta -= dip
	phi += azimuth
	x, y, z := sph2cart(theta, phi, r)
	return [3]float64{x + centre[0], y + centre[1], z + centre[2]}
}

// GlobalToLocal is the inverse of LocalToGlobal.
func GlobalToLocal(xyz [3]float64, centre [3]float64, azimuth, dip float64) [3]float64 {
	dx, dy, dz := xyz[0]-centre[0], xyz[1]-centre[1], xyz[2]-centre[2]
	theta, phi, r := cart2sph(dx, dy, dz)
	theta += dip
	phi -= azimuth
	x, y, z := sph2cart(theta, phi, r)
	return [3]float64{x + centre[0], y + centre[1], z + centre[2]}
}
