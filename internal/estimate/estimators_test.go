package estimate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-data/groundtrack.report/internal/frame"
	"github.com/skyward-data/groundtrack.report/internal/geo"
)

var testEpoch = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func testFrame(ts time.Time, coords *geo.Coordinates, gsd float64) *frame.Frame {
	return &frame.Frame{
		ID:          uuid.New(),
		Timestamp:   ts,
		Coordinates: coords,
		GSD:         gsd,
	}
}

// stubMatcher returns a fixed result or error.
type stubMatcher struct {
	res   frame.MatchResult
	err   error
	calls int
}

func (m *stubMatcher) Match(_ context.Context, _, _ *frame.Frame) (frame.MatchResult, error) {
	m.calls++
	if m.err != nil {
		return frame.MatchResult{}, m.err
	}
	return m.res, nil
}

func TestGeodeticObservationKnownSpeed(t *testing.T) {
	// Two equatorial points exactly 500,000 m apart by haversine, 66.67 s
	// apart in capture time: speed must come out at ~7,500 m/s.
	a := testFrame(testEpoch, &geo.Coordinates{Lat: 0, Lon: 0}, 0)
	lon2 := 500000.0 / geo.EarthRadiusMeters * 180 / math.Pi
	b := testFrame(testEpoch.Add(66670*time.Millisecond), &geo.Coordinates{Lat: 0, Lon: lon2}, 0)

	obs, err := GeodeticObservation(a, b)
	if err != nil {
		t.Fatalf("GeodeticObservation: %v", err)
	}
	if obs.Source != SourceGeotag {
		t.Errorf("Source = %q, want %q", obs.Source, SourceGeotag)
	}
	if math.Abs(obs.DistanceMeters-500000) > 0.001 {
		t.Errorf("DistanceMeters = %v, want 500000", obs.DistanceMeters)
	}
	if got := obs.SpeedMPS(); math.Abs(got-7500) > 0.5 {
		t.Errorf("SpeedMPS() = %v, want ~7500", got)
	}
}

func TestGeodeticObservationMissingGeotag(t *testing.T) {
	tagged := testFrame(testEpoch, &geo.Coordinates{Lat: 1, Lon: 1}, 0)
	untagged := testFrame(testEpoch.Add(10*time.Second), nil, 0)

	if _, err := GeodeticObservation(tagged, untagged); !errors.Is(err, geo.ErrMissingGeotag) {
		t.Errorf("err = %v, want ErrMissingGeotag", err)
	}

	untaggedFirst := testFrame(testEpoch, nil, 0)
	taggedSecond := testFrame(testEpoch.Add(10*time.Second), &geo.Coordinates{Lat: 1, Lon: 1}, 0)
	if _, err := GeodeticObservation(untaggedFirst, taggedSecond); !errors.Is(err, geo.ErrMissingGeotag) {
		t.Errorf("err = %v, want ErrMissingGeotag", err)
	}
}

func TestGeodeticObservationNonCausalPair(t *testing.T) {
	c := &geo.Coordinates{Lat: 1, Lon: 1}
	a := testFrame(testEpoch, c, 0)

	for _, ts := range []time.Time{testEpoch, testEpoch.Add(-time.Second)} {
		b := testFrame(ts, c, 0)
		if _, err := GeodeticObservation(a, b); !errors.Is(err, ErrNonCausalPair) {
			t.Errorf("elapsed %v: err = %v, want ErrNonCausalPair", ts.Sub(testEpoch), err)
		}
	}
}

func TestFeatureObservationScalesByGSD(t *testing.T) {
	m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 250, PixelDisplacement: 600}}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 100}

	a := testFrame(testEpoch, nil, 126.48)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 126.48)

	obs, err := e.Observation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Observation: %v", err)
	}
	if obs.Source != SourceFeature {
		t.Errorf("Source = %q, want %q", obs.Source, SourceFeature)
	}
	want := 600 * 126.48
	if math.Abs(obs.DistanceMeters-want) > 1e-9 {
		t.Errorf("DistanceMeters = %v, want %v", obs.DistanceMeters, want)
	}
	if obs.MatchedPoints != 250 {
		t.Errorf("MatchedPoints = %d, want 250", obs.MatchedPoints)
	}
}

func TestFeatureObservationInsufficientMatches(t *testing.T) {
	// 3 matched points against a threshold of 10 must be rejected and
	// never reach the pool.
	m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 3, PixelDisplacement: 500}}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 10}

	a := testFrame(testEpoch, nil, 100)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 100)

	if _, err := e.Observation(context.Background(), a, b); !errors.Is(err, ErrInsufficientMatches) {
		t.Errorf("err = %v, want ErrInsufficientMatches", err)
	}
}

func TestFeatureObservationDegenerate(t *testing.T) {
	a := testFrame(testEpoch, nil, 100)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 100)

	for _, disp := range []float64{0, -12.5} {
		m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 200, PixelDisplacement: disp}}
		e := FeatureEstimator{Matcher: m, MinMatchCount: 100}
		if _, err := e.Observation(context.Background(), a, b); !errors.Is(err, ErrDegenerateMatch) {
			t.Errorf("displacement %v: err = %v, want ErrDegenerateMatch", disp, err)
		}
	}
}

func TestFeatureObservationNoUsableGSD(t *testing.T) {
	m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 200, PixelDisplacement: 500}}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 100}

	a := testFrame(testEpoch, nil, 0)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 0)

	if _, err := e.Observation(context.Background(), a, b); !errors.Is(err, ErrDegenerateMatch) {
		t.Errorf("err = %v, want ErrDegenerateMatch", err)
	}
}

func TestFeatureObservationFallsBackToOlderGSD(t *testing.T) {
	m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 200, PixelDisplacement: 10}}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 100}

	a := testFrame(testEpoch, nil, 50)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 0)

	obs, err := e.Observation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Observation: %v", err)
	}
	if obs.DistanceMeters != 500 {
		t.Errorf("DistanceMeters = %v, want 500 (older frame GSD)", obs.DistanceMeters)
	}
}

func TestFeatureObservationMatchingUnavailablePassthrough(t *testing.T) {
	m := &stubMatcher{err: frame.ErrMatchingUnavailable}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 100}

	a := testFrame(testEpoch, nil, 100)
	b := testFrame(testEpoch.Add(10*time.Second), nil, 100)

	if _, err := e.Observation(context.Background(), a, b); !errors.Is(err, frame.ErrMatchingUnavailable) {
		t.Errorf("err = %v, want ErrMatchingUnavailable", err)
	}
}

func TestFeatureObservationSkipsMatcherOnNonCausalPair(t *testing.T) {
	m := &stubMatcher{res: frame.MatchResult{MatchedPoints: 200, PixelDisplacement: 10}}
	e := FeatureEstimator{Matcher: m, MinMatchCount: 100}

	a := testFrame(testEpoch, nil, 100)
	b := testFrame(testEpoch, nil, 100)

	if _, err := e.Observation(context.Background(), a, b); !errors.Is(err, ErrNonCausalPair) {
		t.Fatalf("err = %v, want ErrNonCausalPair", err)
	}
	if m.calls != 0 {
		t.Errorf("matcher called %d times for a non-causal pair, want 0", m.calls)
	}
}
