package geo

import (
	"errors"
	"math"
	"testing"
)

func TestDistanceZeroForIdenticalCoordinates(t *testing.T) {
	c := Coordinates{Lat: 51.4779, Lon: -0.0015}
	d, err := Distance(c, c)
	if err != nil {
		t.Fatalf("Distance returned error: %v", err)
	}
	if d != 0 {
		t.Errorf("Distance(c, c) = %v, want exactly 0", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	cases := []struct {
		name string
		a, b Coordinates
	}{
		{"equator", Coordinates{Lat: 0, Lon: 0}, Coordinates{Lat: 0, Lon: 10}},
		{"mid latitude", Coordinates{Lat: 48.8566, Lon: 2.3522}, Coordinates{Lat: 51.5074, Lon: -0.1278}},
		{"antimeridian", Coordinates{Lat: -10, Lon: 179.5}, Coordinates{Lat: -9.5, Lon: -179.5}},
		{"pole", Coordinates{Lat: 89.9, Lon: 0}, Coordinates{Lat: 89.9, Lon: 180}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab, err := Distance(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Distance(a, b) error: %v", err)
			}
			ba, err := Distance(tc.b, tc.a)
			if err != nil {
				t.Fatalf("Distance(b, a) error: %v", err)
			}
			if ab != ba {
				t.Errorf("Distance not symmetric: %v vs %v", ab, ba)
			}
			if ab <= 0 {
				t.Errorf("Distance = %v, want > 0", ab)
			}
		})
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of longitude on the equator is R * pi/180.
	a := Coordinates{Lat: 0, Lon: 0}
	b := Coordinates{Lat: 0, Lon: 1}
	want := EarthRadiusMeters * math.Pi / 180

	d, err := Distance(a, b)
	if err != nil {
		t.Fatalf("Distance error: %v", err)
	}
	if math.Abs(d-want) > 1e-6 {
		t.Errorf("Distance = %v, want %v", d, want)
	}
}

func TestDistanceRejectsInvalidCoordinates(t *testing.T) {
	valid := Coordinates{Lat: 10, Lon: 10}
	cases := []struct {
		name string
		c    Coordinates
	}{
		{"nan lat", Coordinates{Lat: math.NaN(), Lon: 0}},
		{"nan lon", Coordinates{Lat: 0, Lon: math.NaN()}},
		{"inf lat", Coordinates{Lat: math.Inf(1), Lon: 0}},
		{"lat out of range", Coordinates{Lat: 91, Lon: 0}},
		{"lon out of range", Coordinates{Lat: 0, Lon: -181}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Distance(tc.c, valid); !errors.Is(err, ErrMissingGeotag) {
				t.Errorf("Distance(invalid, valid) error = %v, want ErrMissingGeotag", err)
			}
			if _, err := Distance(valid, tc.c); !errors.Is(err, ErrMissingGeotag) {
				t.Errorf("Distance(valid, invalid) error = %v, want ErrMissingGeotag", err)
			}
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	start := Coordinates{Lat: 12.34, Lon: 56.78}
	const dist = 75000.0

	end := Destination(start, 42, dist)
	got, err := Distance(start, end)
	if err != nil {
		t.Fatalf("Distance error: %v", err)
	}
	if math.Abs(got-dist) > 0.01 {
		t.Errorf("Distance(start, Destination(start, 42, %v)) = %v, want %v", dist, got, dist)
	}
}

func TestDestinationNormalisesLongitude(t *testing.T) {
	start := Coordinates{Lat: 0, Lon: 179.9}
	end := Destination(start, 90, 100000)
	if end.Lon < -180 || end.Lon >= 180 {
		t.Errorf("Destination longitude %v not normalised to [-180, 180)", end.Lon)
	}
}
