package frame

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skyward-data/groundtrack.report/internal/geo"
	"github.com/skyward-data/groundtrack.report/internal/timeutil"
)

// SimConfig tunes the simulated orbit camera. Zero values fall back to the
// defaults noted per field.
type SimConfig struct {
	Start          geo.Coordinates // initial sub-satellite point
	BearingDeg     float64         // ground-track heading
	GroundSpeedMPS float64         // true ground-track speed (default 7500)
	Interval       time.Duration   // capture cadence (default 10s)
	GSD            float64         // meters per pixel (default 126.48)

	// Imperfection knobs.
	GeotagJitterMeters float64 // stddev of geotag position noise
	GeotagDropEvery    int     // every Nth frame loses its geotag (0 = never)
	DisplacementNoise  float64 // relative noise on pixel displacement
	SparseMatchEvery   int     // every Nth pair matches poorly (0 = never)
	SparseMatchPoints  int     // matched points reported on a sparse pair (default 10)
	MatchedPoints      int     // nominal matched point count (default 400)

	FrameLimit int // stop after N frames (0 = unlimited)
}

func (c SimConfig) withDefaults() SimConfig {
	if c.GroundSpeedMPS == 0 {
		c.GroundSpeedMPS = 7500
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.GSD == 0 {
		// Full-resolution GSD of the reference camera at ISS altitude.
		c.GSD = 126.48
	}
	if c.MatchedPoints == 0 {
		c.MatchedPoints = 400
	}
	if c.SparseMatchPoints == 0 {
		c.SparseMatchPoints = 10
	}
	return c
}

// Sim synthesises frames along a great-circle ground track and can hand out
// a Matcher that derives pixel displacement from the same simulated motion.
// It stands in for the camera during dev runs, the way the original system
// fell back to replayed photos when no camera hardware was present.
type Sim struct {
	cfg   SimConfig
	clock timeutil.Clock
	rng   *rand.Rand
	start time.Time

	mu     sync.Mutex
	n      int // frames produced
	pairs  int // matcher invocations
	truth  map[uuid.UUID]geo.Coordinates
	closed bool
}

// NewSim returns a simulator seeded deterministically. The clock paces
// frame production; synthetic capture timestamps advance by the configured
// interval regardless of the clock, so pairs are always causal.
func NewSim(cfg SimConfig, clock timeutil.Clock, seed int64) *Sim {
	cfg = cfg.withDefaults()
	return &Sim{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(seed)),
		start: clock.Now(),
		truth: make(map[uuid.UUID]geo.Coordinates),
	}
}

// Next produces the next simulated frame. Returns io.EOF once FrameLimit
// frames have been produced.
func (s *Sim) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cfg.FrameLimit > 0 && s.n >= s.cfg.FrameLimit {
		s.mu.Unlock()
		return nil, io.EOF
	}
	n := s.n
	s.n++
	s.mu.Unlock()

	if n > 0 {
		// Pace real runs; a manual clock just records the request.
		s.clock.Sleep(s.cfg.Interval)
	}

	travelled := s.cfg.GroundSpeedMPS * s.cfg.Interval.Seconds() * float64(n)
	truth := geo.Destination(s.cfg.Start, s.cfg.BearingDeg, travelled)

	f := &Frame{
		ID:        uuid.New(),
		Timestamp: s.start.Add(time.Duration(n) * s.cfg.Interval),
		PixelData: []byte(fmt.Sprintf("sim-frame-%d", n)),
		GSD:       s.cfg.GSD,
	}

	s.mu.Lock()
	s.truth[f.ID] = truth
	dropped := s.cfg.GeotagDropEvery > 0 && n > 0 && n%s.cfg.GeotagDropEvery == 0
	var jlat, jlon float64
	if s.cfg.GeotagJitterMeters > 0 {
		jlat = s.rng.NormFloat64()
		jlon = s.rng.NormFloat64()
	}
	s.mu.Unlock()

	if !dropped {
		tagged := truth
		if s.cfg.GeotagJitterMeters > 0 {
			tagged = geo.Destination(tagged, 0, jlat*s.cfg.GeotagJitterMeters)
			tagged = geo.Destination(tagged, 90, jlon*s.cfg.GeotagJitterMeters)
		}
		f.Coordinates = &tagged
	}

	return f, nil
}

// Matcher returns a feature matcher backed by the simulator's true motion.
func (s *Sim) Matcher() Matcher {
	return &simMatcher{sim: s}
}

type simMatcher struct {
	sim *Sim
}

func (m *simMatcher) Match(ctx context.Context, a, b *Frame) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}

	s := m.sim
	s.mu.Lock()
	defer s.mu.Unlock()

	truthA, okA := s.truth[a.ID]
	truthB, okB := s.truth[b.ID]
	if !okA || !okB {
		return MatchResult{}, fmt.Errorf("%w: frame not produced by this simulator", ErrMatchingUnavailable)
	}

	s.pairs++
	if s.cfg.SparseMatchEvery > 0 && s.pairs%s.cfg.SparseMatchEvery == 0 {
		return MatchResult{MatchedPoints: s.cfg.SparseMatchPoints, PixelDisplacement: 0}, nil
	}

	dist, err := geo.Distance(truthA, truthB)
	if err != nil {
		return MatchResult{}, err
	}

	gsd := b.GSD
	if gsd <= 0 {
		gsd = a.GSD
	}
	displacement := dist / gsd
	if s.cfg.DisplacementNoise > 0 {
		displacement *= 1 + s.rng.NormFloat64()*s.cfg.DisplacementNoise
	}

	points := s.cfg.MatchedPoints + s.rng.Intn(s.cfg.MatchedPoints/4+1)
	return MatchResult{MatchedPoints: points, PixelDisplacement: displacement}, nil
}

// UnavailableMatcher always reports ErrMatchingUnavailable. Used when the
// matching capability is absent so a run degrades to geotag-only mode.
type UnavailableMatcher struct{}

// Match implements Matcher.
func (UnavailableMatcher) Match(context.Context, *Frame, *Frame) (MatchResult, error) {
	return MatchResult{}, ErrMatchingUnavailable
}
