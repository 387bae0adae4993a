// Package geo provides great-circle math over GPS coordinates. All
// distances are meters, all bearings are degrees clockwise from north.
package geo

import (
	"math"

	"github.com/mcdev12/manhunt/go/internal/models"
)

const earthRadiusM = 6371000.0

// Distance returns the haversine great-circle distance between two
// coordinates in meters.
func Distance(a, b models.Location) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b models.Location) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := degrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// Destination returns the coordinate reached by traveling distanceM meters
// from origin along the given bearing.
func Destination(origin models.Location, distanceM, bearingDeg float64) models.Location {
	lat1 := radians(origin.Lat)
	lng1 := radians(origin.Lng)
	brng := radians(bearingDeg)
	d := distanceM / earthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return models.Location{Lat: degrees(lat2), Lng: degrees(lng2)}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
