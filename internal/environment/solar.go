package environment

import (
	"math"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// SolarAltitude returns the sun's elevation above the horizon in degrees,
// using the NOAA general solar position approximation.
func SolarAltitude(at time.Time, c geo.Coordinate) float64 {
	t := at.UTC()

	hour := float64(t.Hour())
	minute := float64(t.Minute())
	second := float64(t.Second())

	daysInYear := 365.0
	if y := t.Year(); y%4 == 0 && (y%100 != 0 || y%400 == 0) {
		daysInYear = 366
	}

	// Fractional year in radians.
	g := 2 * math.Pi / daysInYear * (float64(t.YearDay()-1) + (hour-12)/24)

	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(g) -
		0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) -
		0.040849*math.Sin(2*g))

	decl := 0.006918 -
		0.399912*math.Cos(g) +
		0.070257*math.Sin(g) -
		0.006758*math.Cos(2*g) +
		0.000907*math.Sin(2*g) -
		0.002697*math.Cos(3*g) +
		0.00148*math.Sin(3*g)

	// True solar time in minutes, UTC offset zero.
	tst := hour*60 + minute + second/60 + eqTime + 4*c.Lng
	hourAngle := (tst/4 - 180) * math.Pi / 180

	lat := c.Lat * math.Pi / 180
	cosZenith := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(hourAngle)
	cosZenith = math.Max(-1, math.Min(1, cosZenith))

	return 90 - math.Acos(cosZenith)*180/math.Pi
}

// SolarFactor is 0 when the sun is below the horizon and sin(altitude)
// otherwise.
func SolarFactor(at time.Time, c geo.Coordinate) float64 {
	alt := SolarAltitude(at, c)
	if alt <= 0 {
		return 0
	}
	return math.Sin(alt * math.Pi / 180)
}
