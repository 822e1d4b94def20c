package geo

// Amersfoort / RD New (EPSG:28992) → WGS84 (EPSG:4326).
// RD New is an oblique stereographic projection of the Bessel 1841 ellipsoid
// through a Gaussian conformal sphere. The datum shift to WGS84 is the
// 7-parameter position-vector Helmert transform published with the definition:
//
//	+proj=sterea +lat_0=52.15616055555555 +lon_0=5.38763888888889 +k=0.9999079
//	+x_0=155000 +y_0=463000 +ellps=bessel +units=m
//	+towgs84=565.2369,50.0087,465.658,-0.406857330322398,0.350732676542563,-1.8703473836068,4.0812

import "math"

const (
	rdFalseEasting  = 155000.0
	rdFalseNorthing = 463000.0
	rdLat0Deg       = 52.15616055555555
	rdLon0Deg       = 5.38763888888889
	rdScale         = 0.9999079

	besselSemiMajor = 6377397.155
	besselInvFlat   = 299.1528128

	wgs84SemiMajor = 6378137.0
	wgs84InvFlat   = 298.257223563

	arcSecToRad = math.Pi / (180 * 3600)

	gaussMaxIter = 20
	gaussTol     = 1e-14
	geodeticIter = 10
)

// Helmert parameters: translations in metres, rotations in arc seconds, scale in ppm.
var rdToWGS84 = helmert{
	dx: 565.2369, dy: 50.0087, dz: 465.658,
	rx: -0.406857330322398, ry: 0.350732676542563, rz: -1.8703473836068,
	ppm: 4.0812,
}

type helmert struct {
	dx, dy, dz float64
	rx, ry, rz float64
	ppm        float64
}

type ellipsoid struct {
	a  float64
	es float64
}

func newEllipsoid(a, invFlat float64) ellipsoid {
	f := 1 / invFlat
	return ellipsoid{a: a, es: 2*f - f*f}
}

var (
	bessel = newEllipsoid(besselSemiMajor, besselInvFlat)
	wgs84  = newEllipsoid(wgs84SemiMajor, wgs84InvFlat)

	// Gaussian sphere constants for RD New, derived in init.
	gaussC   float64
	gaussK   float64
	gaussChi float64
	sinChi0  float64
	cosChi0  float64
	sphereR2 float64
	besselE  float64
)

func init() {
	besselE = math.Sqrt(bessel.es)
	phi0 := rdLat0Deg * math.Pi / 180

	sphi := math.Sin(phi0)
	cphi := math.Cos(phi0)
	cphi *= cphi

	rc := math.Sqrt(1-bessel.es) / (1 - bessel.es*sphi*sphi)
	gaussC = math.Sqrt(1 + bessel.es*cphi*cphi/(1-bessel.es))
	gaussChi = math.Asin(sphi / gaussC)
	ratexp := 0.5 * gaussC * besselE
	gaussK = math.Tan(0.5*gaussChi+math.Pi/4) /
		(math.Pow(math.Tan(0.5*phi0+math.Pi/4), gaussC) * srat(besselE*sphi, ratexp))

	sinChi0 = math.Sin(gaussChi)
	cosChi0 = math.Cos(gaussChi)
	sphereR2 = 2 * rc
}

func srat(esinp, exp float64) float64 {
	return math.Pow((1-esinp)/(1+esinp), exp)
}

// RDToWGS84 converts RD New easting/northing in metres to WGS84 longitude and
// latitude in decimal degrees.
func RDToWGS84(x, y float64) (lon, lat float64) {
	phi, lam := rdInverse(x, y)
	gx, gy, gz := toGeocentric(bessel, phi, lam)
	gx, gy, gz = rdToWGS84.apply(gx, gy, gz)
	phi, lam = toGeodetic(wgs84, gx, gy, gz)
	return lam * 180 / math.Pi, phi * 180 / math.Pi
}

// rdInverse returns Bessel geodetic latitude and longitude in radians.
func rdInverse(x, y float64) (phi, lam float64) {
	xn := (x - rdFalseEasting) / (besselSemiMajor * rdScale)
	yn := (y - rdFalseNorthing) / (besselSemiMajor * rdScale)

	if rho := math.Hypot(xn, yn); rho != 0 {
		c := 2 * math.Atan2(rho, sphereR2)
		sinc, cosc := math.Sincos(c)
		phi = math.Asin(cosc*sinChi0 + yn*sinc*cosChi0/rho)
		lam = math.Atan2(xn*sinc, rho*cosChi0*cosc-yn*sinChi0*sinc)
	} else {
		phi = gaussChi
	}

	// Gaussian sphere back to the ellipsoid.
	lam /= gaussC
	num := math.Pow(math.Tan(0.5*phi+math.Pi/4)/gaussK, 1/gaussC)
	for i := 0; i < gaussMaxIter; i++ {
		next := 2*math.Atan(num*srat(besselE*math.Sin(phi), -0.5*besselE)) - math.Pi/2
		done := math.Abs(next-phi) < gaussTol
		phi = next
		if done {
			break
		}
	}

	return phi, lam + rdLon0Deg*math.Pi/180
}

func toGeocentric(e ellipsoid, phi, lam float64) (x, y, z float64) {
	sinPhi, cosPhi := math.Sincos(phi)
	sinLam, cosLam := math.Sincos(lam)
	n := e.a / math.Sqrt(1-e.es*sinPhi*sinPhi)
	return n * cosPhi * cosLam, n * cosPhi * sinLam, n * (1 - e.es) * sinPhi
}

func toGeodetic(e ellipsoid, x, y, z float64) (phi, lam float64) {
	p := math.Hypot(x, y)
	lam = math.Atan2(y, x)
	phi = math.Atan2(z, p*(1-e.es))
	for i := 0; i < geodeticIter; i++ {
		sinPhi := math.Sin(phi)
		n := e.a / math.Sqrt(1-e.es*sinPhi*sinPhi)
		h := p/math.Cos(phi) - n
		phi = math.Atan2(z, p*(1-e.es*n/(n+h)))
	}
	return phi, lam
}

func (h helmert) apply(x, y, z float64) (float64, float64, float64) {
	rx, ry, rz := h.rx*arcSecToRad, h.ry*arcSecToRad, h.rz*arcSecToRad
	m := 1 + h.ppm*1e-6
	return m*(x-rz*y+ry*z) + h.dx,
		m*(rz*x+y-rx*z) + h.dy,
		m*(-ry*x+rx*y+z) + h.dz
}
