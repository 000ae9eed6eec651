package geo

import "math"

const earthRadiusMeters = 6371000

// Result captures the outcome of a radius check.
type Result struct {
	WithinRadius   bool    `json:"within_radius"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula. Accurate to ordinary GPS
// precision, which is all attendance geofencing needs.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Verify compares the distance between a submitted location and the class
// center against the allowed radius. Boundary equality counts as within.
func Verify(studentLat, studentLon, classLat, classLon, radiusMeters float64) Result {
	d := Distance(studentLat, studentLon, classLat, classLon)
	return Result{WithinRadius: d <= radiusMeters, DistanceMeters: d}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
