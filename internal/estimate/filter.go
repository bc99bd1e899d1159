package estimate

import (
	"fmt"

	"github.com/skyward-data/groundtrack.report/internal/config"
)

// FilterConfig bounds what the quality filter accepts.
type FilterConfig struct {
	MinMatchCount int
	MinSpeedMPS   float64
	MaxSpeedMPS   float64
}

// FilterConfigFromEstimator derives filter bounds from the tuning document.
func FilterConfigFromEstimator(cfg *config.EstimatorConfig) FilterConfig {
	return FilterConfig{
		MinMatchCount: cfg.GetMinMatchCount(),
		MinSpeedMPS:   cfg.GetMinPlausibleSpeedMPS(),
		MaxSpeedMPS:   cfg.GetMaxPlausibleSpeedMPS(),
	}
}

// QualityFilter screens raw observations before they become speed samples.
type QualityFilter struct {
	cfg FilterConfig
}

// NewQualityFilter returns a filter with the given bounds.
func NewQualityFilter(cfg FilterConfig) *QualityFilter {
	return &QualityFilter{cfg: cfg}
}

// Check returns nil when the observation may enter the pool, or the
// rejection error otherwise. Rules apply in order: causality, speed
// plausibility, then a defensive re-check of the feature match count
// (already enforced by the estimator).
func (f *QualityFilter) Check(obs DistanceObservation) error {
	if obs.ElapsedSeconds <= 0 {
		return fmt.Errorf("%w: elapsed %.3fs", ErrNonCausalPair, obs.ElapsedSeconds)
	}

	speed := obs.SpeedMPS()
	if speed < f.cfg.MinSpeedMPS || speed > f.cfg.MaxSpeedMPS {
		return fmt.Errorf("%w: %.1f m/s outside [%.1f, %.1f]",
			ErrImplausibleSpeed, speed, f.cfg.MinSpeedMPS, f.cfg.MaxSpeedMPS)
	}

	if obs.Source == SourceFeature && obs.MatchedPoints < f.cfg.MinMatchCount {
		return fmt.Errorf("%w: %d matched, need %d",
			ErrInsufficientMatches, obs.MatchedPoints, f.cfg.MinMatchCount)
	}

	return nil
}
