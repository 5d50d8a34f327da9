package telescope

import "math"

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// AngularSeparation returns the great-circle angle in degrees between two
// equatorial positions, by the spherical law of cosines.
func AngularSeparation(a, b Equatorial) float64 {
	ra1, dec1 := deg2rad(a.RAHours*15), deg2rad(a.DecDegrees)
	ra2, dec2 := deg2rad(b.RAHours*15), deg2rad(b.DecDegrees)
	cosSep := math.Sin(dec1)*math.Sin(dec2) + math.Cos(dec1)*math.Cos(dec2)*math.Cos(ra1-ra2)
	// Guard rounding outside [-1,1].
	if cosSep > 1 {
		cosSep = 1
	} else if cosSep < -1 {
		cosSep = -1
	}
	return rad2deg(math.Acos(cosSep))
}

// SkyRate returns the on-sky angular speed in degrees/second for the given
// horizontal component rates at the given altitude. Azimuth motion covers
// less sky near the zenith.
func SkyRate(azRate, altRate, altitude float64) float64 {
	az := azRate * math.Cos(deg2rad(altitude))
	return math.Sqrt(az*az + altRate*altRate)
}

// WrapDelta returns the shortest signed angular difference b-a on a circle
// of the given period (360 for degrees, 24 for hour angles).
func WrapDelta(a, b, period float64) float64 {
	d := math.Mod(b-a, period)
	if d > period/2 {
		d -= period
	} else if d < -period/2 {
		d += period
	}
	return d
}
