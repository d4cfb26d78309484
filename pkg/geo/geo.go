package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle (haversine) distance between a and b
// in kilometers.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dlat := radians(b.Lat - a.Lat)
	dlon := radians(b.Lon - a.Lon)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// EstimateETA converts a distance and a speed into whole minutes.
// ok is false when speedKmh is zero or negative; the division is never
// attempted in that case.
func EstimateETA(distanceKm, speedKmh float64) (minutes int, ok bool) {
	if speedKmh <= 0 {
		return 0, false
	}
	return int(math.Round(distanceKm / speedKmh * 60)), true
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
