// Package geo provides great-circle math for link distance and bearing.
package geo

import "math"

// earthRadiusKm is the approximate radius of Earth.
const earthRadiusKm = 6371

// Distance returns the great-circle distance between two coordinates in
// kilometers via the haversine formula, rounded to 3 decimal places.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := radians(lat1)
	rLat2 := radians(lat2)
	lonDelta := radians(lon2 - lon1)

	d := 2 * earthRadiusKm * math.Asin(math.Sqrt(
		hav(rLat2-rLat1)+math.Cos(rLat1)*math.Cos(rLat2)*hav(lonDelta),
	))
	return round(d, 3)
}

// Bearing returns the initial bearing from the first coordinate to the
// second in degrees, in the range [-180, 180], rounded to 1 decimal place.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := radians(lat1)
	rLat2 := radians(lat2)
	lonDelta := radians(lon2 - lon1)

	b := math.Atan2(
		math.Sin(lonDelta)*math.Cos(rLat2),
		math.Cos(rLat1)*math.Sin(rLat2)-math.Sin(rLat1)*math.Cos(rLat2)*math.Cos(lonDelta),
	)
	return round(b*180/math.Pi, 1)
}

// hav is the haversine of an angle in radians.
func hav(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
