// Package geo provides great-circle geometry over a spherical Earth model.
//
// All distances are in meters and all coordinates are in decimal degrees.
// The sphere uses the mean Earth radius; altitude correction is deliberately
// not applied (geotag altitudes on captured frames are too noisy to help).
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the spherical model.
const EarthRadiusMeters = 6371000.0

// ErrMissingGeotag reports coordinates that are absent or unusable
// (NaN, Inf, or outside the valid latitude/longitude range).
var ErrMissingGeotag = errors.New("missing or invalid geotag")

// Coordinates is a geotag position in decimal degrees.
// AltMeters is informational only and never affects distance.
type Coordinates struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AltMeters float64 `json:"alt_meters,omitempty"`
}

// Validate reports whether the coordinates are usable for distance
// computation. Returns ErrMissingGeotag (wrapped with detail) when not.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: non-finite value (lat=%v lon=%v)", ErrMissingGeotag, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrMissingGeotag, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrMissingGeotag, c.Lon)
	}
	return nil
}

// Distance returns the great-circle distance in meters between a and b
// using the haversine formula. It is symmetric and returns exactly zero
// for identical coordinates.
func Distance(a, b Coordinates) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return 0, nil
	}

	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c, nil
}

// Destination returns the coordinates reached by travelling distanceMeters
// along the great circle from start at the given initial bearing (degrees
// clockwise from north). Used by the orbit simulator to lay out a track.
func Destination(start Coordinates, bearingDeg, distanceMeters float64) Coordinates {
	delta := distanceMeters / EarthRadiusMeters
	theta := radians(bearingDeg)
	lat1 := radians(start.Lat)
	lon1 := radians(start.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalise longitude to [-180, 180).
	lonDeg := math.Mod(degrees(lon2)+540, 360) - 180

	return Coordinates{Lat: degrees(lat2), Lon: lonDeg, AltMeters: start.AltMeters}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
