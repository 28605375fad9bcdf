package stats

import (
	"math"

	"gpstrack/internal/domain"
)

// EarthRadiusKM is the mean Earth radius used for every distance in the tracker
const EarthRadiusKM = 6371.0

func toRad(d float64) float64 { return d * math.Pi / 180 }

// HaversineKM returns the great-circle distance between two positions
func HaversineKM(a, b domain.LatLon) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*sinLon*sinLon
	return EarthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLengthKM sums the haversine distance of consecutive points in path order
func PathLengthKM(path domain.Path) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineKM(path[i-1], path[i])
	}
	return total
}
