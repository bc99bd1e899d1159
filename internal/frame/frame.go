// Package frame defines the captured-frame data model and the two external
// capabilities the estimation core consumes: a frame source and a feature
// matcher. Real camera hardware and real image matching live behind these
// interfaces; the package also ships simulated implementations for dev runs
// and tests.
package frame

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-data/groundtrack.report/internal/geo"
)

// ErrMatchingUnavailable reports that the feature-matching capability is
// absent or broken. Detected once per run; the caller degrades to
// geotag-only estimation instead of retrying per pair.
var ErrMatchingUnavailable = errors.New("feature matching unavailable")

// Frame is one captured image with its metadata. Immutable once produced;
// the estimation core never holds a reference past the pair it is
// processing.
type Frame struct {
	ID        uuid.UUID
	Timestamp time.Time

	// Coordinates is nil when the capture carried no geotag. Such a frame
	// contributes no geotag observation but can still be feature-matched.
	Coordinates *geo.Coordinates

	// PixelData is an opaque handle passed through to the Matcher. The
	// core never inspects it.
	PixelData []byte

	// GSD is the ground sample distance in meters per pixel at this
	// frame's altitude, derived upstream from optics and orbit.
	GSD float64
}

// MatchResult is the output of feature matching a pair of frames.
// PixelDisplacement is a single representative magnitude (the matcher's
// mean displacement over its filtered correspondences).
type MatchResult struct {
	MatchedPoints     int
	PixelDisplacement float64
}

// Matcher is the injected feature-matching capability.
type Matcher interface {
	// Match compares two frames and returns the matched point count and
	// representative pixel displacement. Returns ErrMatchingUnavailable
	// when the capability cannot run at all.
	Match(ctx context.Context, a, b *Frame) (MatchResult, error)
}

// Source supplies frames in capture order. Next returns io.EOF when the
// source is exhausted, or ctx.Err() when the caller gave up waiting.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
}
