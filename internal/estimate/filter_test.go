package estimate

import (
	"errors"
	"testing"
)

func defaultFilter() *QualityFilter {
	return NewQualityFilter(FilterConfig{
		MinMatchCount: 100,
		MinSpeedMPS:   5000,
		MaxSpeedMPS:   9000,
	})
}

func TestFilterAcceptsPlausibleObservation(t *testing.T) {
	f := defaultFilter()
	obs := DistanceObservation{
		Source:         SourceGeotag,
		DistanceMeters: 75000,
		ElapsedSeconds: 10,
	}
	if err := f.Check(obs); err != nil {
		t.Errorf("Check rejected a 7500 m/s geotag observation: %v", err)
	}
}

func TestFilterRejectsNonCausal(t *testing.T) {
	f := defaultFilter()
	for _, elapsed := range []float64{0, -3} {
		obs := DistanceObservation{Source: SourceGeotag, DistanceMeters: 75000, ElapsedSeconds: elapsed}
		if err := f.Check(obs); !errors.Is(err, ErrNonCausalPair) {
			t.Errorf("elapsed %v: err = %v, want ErrNonCausalPair", elapsed, err)
		}
	}
}

func TestFilterRejectsImplausibleSpeed(t *testing.T) {
	f := defaultFilter()
	cases := []struct {
		name     string
		distance float64
	}{
		{"too slow", 10000},  // 1000 m/s
		{"too fast", 120000}, // 12000 m/s
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := DistanceObservation{Source: SourceGeotag, DistanceMeters: tc.distance, ElapsedSeconds: 10}
			if err := f.Check(obs); !errors.Is(err, ErrImplausibleSpeed) {
				t.Errorf("err = %v, want ErrImplausibleSpeed", err)
			}
		})
	}
}

func TestFilterRechecksMatchCountDefensively(t *testing.T) {
	f := defaultFilter()
	obs := DistanceObservation{
		Source:         SourceFeature,
		DistanceMeters: 75000,
		ElapsedSeconds: 10,
		MatchedPoints:  3,
	}
	if err := f.Check(obs); !errors.Is(err, ErrInsufficientMatches) {
		t.Errorf("err = %v, want ErrInsufficientMatches", err)
	}

	// The match-count rule applies only to feature observations.
	obs.Source = SourceGeotag
	obs.MatchedPoints = 0
	if err := f.Check(obs); err != nil {
		t.Errorf("geotag observation rejected on match count: %v", err)
	}
}

func TestFilterRuleOrder(t *testing.T) {
	// Causality outranks plausibility: a non-causal observation reports
	// NonCausalPair even when its speed would also be implausible.
	f := defaultFilter()
	obs := DistanceObservation{Source: SourceFeature, DistanceMeters: 1, ElapsedSeconds: 0, MatchedPoints: 3}
	if err := f.Check(obs); !errors.Is(err, ErrNonCausalPair) {
		t.Errorf("err = %v, want ErrNonCausalPair first", err)
	}
}

func TestReasonForError(t *testing.T) {
	cases := []struct {
		err  error
		want RejectReason
	}{
		{ErrNonCausalPair, RejectNonCausalPair},
		{ErrImplausibleSpeed, RejectImplausibleSpeed},
		{ErrInsufficientMatches, RejectInsufficientMatches},
		{ErrDegenerateMatch, RejectDegenerateMatch},
		{errors.New("boom"), RejectUnknown},
	}
	for _, tc := range cases {
		if got := ReasonForError(tc.err); got != tc.want {
			t.Errorf("ReasonForError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
