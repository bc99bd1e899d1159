package estimate

import (
	"context"
	"fmt"

	"github.com/skyward-data/groundtrack.report/internal/frame"
	"github.com/skyward-data/groundtrack.report/internal/geo"
)

// pairElapsed returns the capture-time separation of a pair in seconds.
// Pairs with non-positive elapsed time never become observations.
func pairElapsed(a, b *frame.Frame) (float64, error) {
	elapsed := b.Timestamp.Sub(a.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0, fmt.Errorf("%w: %.3fs between frames", ErrNonCausalPair, elapsed)
	}
	return elapsed, nil
}

// GeodeticObservation estimates the distance travelled between two frames
// from their geotags. Fails with geo.ErrMissingGeotag when either frame
// carries no usable geotag, and ErrNonCausalPair on zero or negative
// elapsed time.
func GeodeticObservation(a, b *frame.Frame) (DistanceObservation, error) {
	elapsed, err := pairElapsed(a, b)
	if err != nil {
		return DistanceObservation{}, err
	}

	if a.Coordinates == nil {
		return DistanceObservation{}, fmt.Errorf("%w: frame %s untagged", geo.ErrMissingGeotag, a.ID)
	}
	if b.Coordinates == nil {
		return DistanceObservation{}, fmt.Errorf("%w: frame %s untagged", geo.ErrMissingGeotag, b.ID)
	}

	dist, err := geo.Distance(*a.Coordinates, *b.Coordinates)
	if err != nil {
		return DistanceObservation{}, err
	}

	return DistanceObservation{
		Source:         SourceGeotag,
		DistanceMeters: dist,
		ElapsedSeconds: elapsed,
		FrameA:         a.ID,
		FrameB:         b.ID,
		At:             b.Timestamp,
	}, nil
}

// FeatureEstimator converts matched-feature pixel displacement into ground
// distance using the pair's ground sample distance.
type FeatureEstimator struct {
	Matcher frame.Matcher

	// MinMatchCount is the fewest correspondences a match may rest on.
	// Too few matches are disproportionately noise-prone, so the policy
	// is to reject rather than extrapolate.
	MinMatchCount int
}

// Observation runs the matcher on a pair and scales the result to meters.
// Fails with ErrInsufficientMatches below MinMatchCount, ErrDegenerateMatch
// on non-positive displacement or unusable GSD, ErrNonCausalPair on bad
// timestamps, and passes frame.ErrMatchingUnavailable through untouched so
// the caller can switch the run to geotag-only mode.
func (e FeatureEstimator) Observation(ctx context.Context, a, b *frame.Frame) (DistanceObservation, error) {
	elapsed, err := pairElapsed(a, b)
	if err != nil {
		return DistanceObservation{}, err
	}

	res, err := e.Matcher.Match(ctx, a, b)
	if err != nil {
		return DistanceObservation{}, err
	}

	if res.MatchedPoints < e.MinMatchCount {
		return DistanceObservation{}, fmt.Errorf("%w: %d matched, need %d",
			ErrInsufficientMatches, res.MatchedPoints, e.MinMatchCount)
	}
	if res.PixelDisplacement <= 0 {
		return DistanceObservation{}, fmt.Errorf("%w: displacement %.3fpx",
			ErrDegenerateMatch, res.PixelDisplacement)
	}

	gsd := b.GSD
	if gsd <= 0 {
		gsd = a.GSD
	}
	if gsd <= 0 {
		return DistanceObservation{}, fmt.Errorf("%w: no usable ground sample distance", ErrDegenerateMatch)
	}

	return DistanceObservation{
		Source:         SourceFeature,
		DistanceMeters: res.PixelDisplacement * gsd,
		ElapsedSeconds: elapsed,
		FrameA:         a.ID,
		FrameB:         b.ID,
		At:             b.Timestamp,
		MatchedPoints:  res.MatchedPoints,
	}, nil
}
