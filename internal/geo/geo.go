// Package geo provides great-circle distance helpers for routing.
package geo

import (
	"math"

	"fieldroute/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between
// two coordinate pairs.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceKm returns the great-circle distance in kilometers between
// two points.
func DistanceKm(a, b model.GeoPoint) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// DistanceMeters returns the great-circle distance in whole meters.
func DistanceMeters(a, b model.GeoPoint) int {
	return int(math.Round(DistanceKm(a, b) * 1000))
}
