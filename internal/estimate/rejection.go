package estimate

import (
	"errors"

	"github.com/skyward-data/groundtrack.report/internal/frame"
	"github.com/skyward-data/groundtrack.report/internal/geo"
)

// RejectReason labels a discarded observation for diagnostics.
type RejectReason string

const (
	RejectMissingGeotag       RejectReason = "missing_geotag"
	RejectInsufficientMatches RejectReason = "insufficient_matches"
	RejectDegenerateMatch     RejectReason = "degenerate_match"
	RejectNonCausalPair       RejectReason = "non_causal_pair"
	RejectImplausibleSpeed    RejectReason = "implausible_speed"
	RejectMatchingUnavailable RejectReason = "matching_unavailable"
	RejectUnknown             RejectReason = "unknown"
)

// Rejection is a diagnostic event describing one discarded observation.
// Rejections are observable side effects for the caller, not errors: the
// run continues without the discarded contribution.
type Rejection struct {
	Reason RejectReason
	Source SourceKind
	Detail string

	// Observation is the screened-out observation when one was built
	// before rejection; nil when the estimator failed earlier.
	Observation *DistanceObservation
}

// ReasonForError maps a pipeline error onto its diagnostic reason.
func ReasonForError(err error) RejectReason {
	switch {
	case errors.Is(err, geo.ErrMissingGeotag):
		return RejectMissingGeotag
	case errors.Is(err, ErrInsufficientMatches):
		return RejectInsufficientMatches
	case errors.Is(err, ErrDegenerateMatch):
		return RejectDegenerateMatch
	case errors.Is(err, ErrNonCausalPair):
		return RejectNonCausalPair
	case errors.Is(err, ErrImplausibleSpeed):
		return RejectImplausibleSpeed
	case errors.Is(err, frame.ErrMatchingUnavailable):
		return RejectMatchingUnavailable
	default:
		return RejectUnknown
	}
}

// NewRejection builds a diagnostic event from a pipeline error.
func NewRejection(err error, source SourceKind, obs *DistanceObservation) Rejection {
	return Rejection{
		Reason:      ReasonForError(err),
		Source:      source,
		Detail:      err.Error(),
		Observation: obs,
	}
}

// DiagnosticSink receives rejection events. A nil sink is allowed and
// drops them.
type DiagnosticSink func(Rejection)
