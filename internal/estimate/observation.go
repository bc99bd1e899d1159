// Package estimate is the speed-estimation core: it turns frame pairs into
// distance observations via two independent methods (feature displacement
// and geotag displacement), screens them, and fuses the surviving speed
// samples into a single inverse-variance weighted estimate.
package estimate

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies which estimation method produced an observation.
type SourceKind string

const (
	// SourceFeature marks observations derived from matched-feature pixel
	// displacement scaled by the ground sample distance.
	SourceFeature SourceKind = "feature"
	// SourceGeotag marks observations derived from great-circle distance
	// between frame geotags.
	SourceGeotag SourceKind = "geotag"
)

// Sentinel errors for the per-pair failure taxonomy. Estimator and filter
// failures are recovered locally: they cost the pair one contribution and
// never abort a run.
var (
	ErrInsufficientMatches = errors.New("insufficient feature matches")
	ErrDegenerateMatch     = errors.New("degenerate feature match")
	ErrNonCausalPair       = errors.New("non-causal frame pair")
	ErrImplausibleSpeed    = errors.New("implausible speed")
	ErrEmptyPool           = errors.New("empty sample pool")
)

// DistanceObservation is a raw distance estimate for one frame pair,
// produced by one estimation method, before quality screening.
// Invariant: ElapsedSeconds > 0 (enforced before construction).
type DistanceObservation struct {
	Source         SourceKind
	DistanceMeters float64
	ElapsedSeconds float64
	FrameA         uuid.UUID
	FrameB         uuid.UUID
	At             time.Time // capture time of the newer frame

	// MatchedPoints is the matcher's correspondence count for feature
	// observations; zero for geotag observations.
	MatchedPoints int
}

// SpeedMPS is the speed this observation implies.
func (o DistanceObservation) SpeedMPS() float64 {
	return o.DistanceMeters / o.ElapsedSeconds
}

// SpeedSample is an accepted observation converted to a speed. Immutable;
// its fusion weight is not stored here because weights are recomputed from
// the per-kind variance of the whole pool on every fusion call.
type SpeedSample struct {
	Source         SourceKind
	SpeedMPS       float64
	DistanceMeters float64
	ElapsedSeconds float64
	FrameA         uuid.UUID
	FrameB         uuid.UUID
	At             time.Time
	MatchedPoints  int
}

// NewSample converts an accepted observation into a SpeedSample.
func NewSample(o DistanceObservation) SpeedSample {
	return SpeedSample{
		Source:         o.Source,
		SpeedMPS:       o.SpeedMPS(),
		DistanceMeters: o.DistanceMeters,
		ElapsedSeconds: o.ElapsedSeconds,
		FrameA:         o.FrameA,
		FrameB:         o.FrameB,
		At:             o.At,
		MatchedPoints:  o.MatchedPoints,
	}
}
