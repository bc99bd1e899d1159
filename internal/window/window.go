// Package window orchestrates one speed-estimation run: it pulls frames
// from the source for the configured time budget, feeds pairs through both
// estimators and the quality filter, and recomputes the fused estimate as
// the sample pool grows.
package window

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skyward-data/groundtrack.report/internal/config"
	"github.com/skyward-data/groundtrack.report/internal/estimate"
	"github.com/skyward-data/groundtrack.report/internal/frame"
	"github.com/skyward-data/groundtrack.report/internal/monitoring"
	"github.com/skyward-data/groundtrack.report/internal/timeutil"
)

// State is the controller lifecycle. There is no path back to idle: a new
// run requires a new controller, so no state leaks across runs.
type State string

const (
	StateIdle         State = "idle"
	StateAccumulating State = "accumulating"
	StateFinalized    State = "finalized"
)

var (
	// ErrNoValidEstimate is the run-level outcome when every pair was
	// rejected. It is a legitimate "insufficient data" result, not a
	// crash: the caller reports speed unavailable and tries the next
	// window.
	ErrNoValidEstimate = errors.New("no valid speed estimate for window")

	// ErrAlreadyRun reports a second Run call on the same controller.
	ErrAlreadyRun = errors.New("window controller is single-use")
)

// Controller runs one estimation window.
type Controller struct {
	budget     time.Duration
	lookbehind int

	featureEst estimate.FeatureEstimator
	filter     *estimate.QualityFilter
	fusionCfg  estimate.FusionConfig

	source frame.Source
	clock  timeutil.Clock
	sink   estimate.DiagnosticSink

	// onSample, when set before Run, observes every accepted sample in
	// arrival order (used for journaling).
	onSample func(seq int, s estimate.SpeedSample)

	mu          sync.Mutex
	state       State
	runID       uuid.UUID
	pool        estimate.SamplePool
	latest      *estimate.FusionResult
	rejections  int
	geotagOnly  bool
	windowStart time.Time
}

// New builds a controller from the tuning document. The sink may be nil.
func New(cfg *config.EstimatorConfig, source frame.Source, matcher frame.Matcher, clock timeutil.Clock, sink estimate.DiagnosticSink) *Controller {
	return &Controller{
		budget:     cfg.GetWindowDuration(),
		lookbehind: cfg.GetLookbehind(),
		featureEst: estimate.FeatureEstimator{
			Matcher:       matcher,
			MinMatchCount: cfg.GetMinMatchCount(),
		},
		filter:    estimate.NewQualityFilter(estimate.FilterConfigFromEstimator(cfg)),
		fusionCfg: estimate.FusionConfigFromEstimator(cfg),
		source:    source,
		clock:     clock,
		sink:      sink,
		state:     StateIdle,
		runID:     uuid.New(),
	}
}

// SetSampleHook registers an observer for accepted samples. Must be called
// before Run.
func (c *Controller) SetSampleHook(fn func(seq int, s estimate.SpeedSample)) {
	c.onSample = fn
}

// RunID identifies this window for journaling and diagnostics.
func (c *Controller) RunID() uuid.UUID { return c.runID }

// State returns the controller lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latest returns a copy of the most recent fusion result, or nil if no
// sample has been accepted yet. Safe to call during a run for live
// monitoring.
func (c *Controller) Latest() *estimate.FusionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest.Clone()
}

// Samples returns a snapshot of the accepted samples in arrival order.
func (c *Controller) Samples() []estimate.SpeedSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Snapshot()
}

// RejectionCount returns how many observations were discarded so far.
func (c *Controller) RejectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejections
}

// GeotagOnly reports whether the run has permanently degraded to
// geotag-only estimation.
func (c *Controller) GeotagOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geotagOnly
}

// Run executes the window: Idle -> Accumulating -> Finalized. It returns
// the final fusion result, or ErrNoValidEstimate when every pair was
// rejected. Cancelling ctx finalizes early with the best result so far
// rather than an error, since partial results are still meaningful.
func (c *Controller) Run(ctx context.Context) (*estimate.FusionResult, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	c.state = StateAccumulating
	c.windowStart = c.clock.Now()
	c.mu.Unlock()

	monitoring.Logf("window %s: accumulating (budget %s, lookbehind %d)", c.runID, c.budget, c.lookbehind)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := c.clock.NewTimer(c.budget)
	defer timer.Stop()

	// Budget expiry cancels runCtx, which is the context every estimator
	// and source call runs under. An in-flight matcher call is interrupted
	// rather than waited out, so a slow matcher cannot stall finalization
	// past the window.
	go func() {
		select {
		case <-timer.C():
			monitoring.Logf("window %s: time budget exhausted", c.runID)
			cancel()
		case <-runCtx.Done():
		}
	}()

	// The producer fetches frames so that a slow source cannot stall
	// budget expiry either.
	frames := make(chan *frame.Frame)
	srcErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			f, err := c.source.Next(runCtx)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
					srcErr <- err
				}
				return
			}
			select {
			case frames <- f:
			case <-runCtx.Done():
				return
			}
		}
	}()

	ring := make([]*frame.Frame, 0, c.lookbehind)

loop:
	for {
		select {
		case <-runCtx.Done():
			if ctx.Err() != nil {
				monitoring.Logf("window %s: cancelled, keeping best result so far", c.runID)
			}
			break loop
		case f, ok := <-frames:
			if !ok {
				select {
				case err := <-srcErr:
					monitoring.Logf("window %s: frame source failed: %v", c.runID, err)
				default:
					monitoring.Logf("window %s: frame source exhausted", c.runID)
				}
				break loop
			}
			c.ingest(runCtx, f, &ring)
		}
	}

	return c.finalize()
}

// ingest pairs the new frame against retained prior frames (newest first),
// runs both estimators and the filter on each pair, and refreshes the fused
// estimate when the pool grew. Pairs are processed strictly in arrival
// order: later samples' weights depend on the variance history of earlier
// ones, so reordering would change the numbers.
func (c *Controller) ingest(ctx context.Context, f *frame.Frame, ring *[]*frame.Frame) {
	grew := false
	for i := len(*ring) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		if c.processPair(ctx, (*ring)[i], f) {
			grew = true
		}
	}

	*ring = append(*ring, f)
	if len(*ring) > c.lookbehind {
		*ring = (*ring)[1:]
	}

	if !grew {
		return
	}

	c.mu.Lock()
	snapshot := c.pool.Snapshot()
	start := c.windowStart
	c.mu.Unlock()

	res, err := estimate.Fuse(snapshot, c.fusionCfg, start, c.clock.Now())
	if err != nil {
		// Only ErrEmptyPool, and the pool just grew.
		monitoring.Logf("window %s: fusion failed: %v", c.runID, err)
		return
	}

	c.mu.Lock()
	c.latest = res
	c.mu.Unlock()

	monitoring.Debugf("window %s: fused %.2f m/s over %d samples (variance %.4g)",
		c.runID, res.FinalSpeedMPS, res.SampleCount, res.CombinedVariance)
}

// processPair runs both estimation methods for one pair. Returns true when
// at least one sample entered the pool. The two methods are independent;
// failures degrade the pair's contribution and never abort the run.
//
// The pair commits atomically at the end: if ctx expired while the pair was
// in flight, its partial results are discarded, not force-completed.
func (c *Controller) processPair(ctx context.Context, a, b *frame.Frame) bool {
	var accepted []estimate.SpeedSample
	var rejected []estimate.Rejection

	if obs, err := estimate.GeodeticObservation(a, b); err != nil {
		rejected = append(rejected, estimate.NewRejection(err, estimate.SourceGeotag, nil))
	} else if err := c.filter.Check(obs); err != nil {
		rejected = append(rejected, estimate.NewRejection(err, estimate.SourceGeotag, &obs))
	} else {
		accepted = append(accepted, estimate.NewSample(obs))
	}

	if c.matchingEnabled() {
		if obs, err := c.featureEst.Observation(ctx, a, b); err != nil {
			switch {
			case errors.Is(err, frame.ErrMatchingUnavailable):
				c.disableMatching(err)
			case ctx.Err() != nil:
				// Interrupted by window close; the discard below covers it.
			default:
				rejected = append(rejected, estimate.NewRejection(err, estimate.SourceFeature, nil))
			}
		} else if err := c.filter.Check(obs); err != nil {
			rejected = append(rejected, estimate.NewRejection(err, estimate.SourceFeature, &obs))
		} else {
			accepted = append(accepted, estimate.NewSample(obs))
		}
	}

	if ctx.Err() != nil {
		if len(accepted) > 0 || len(rejected) > 0 {
			monitoring.Debugf("window %s: discarding in-flight pair results", c.runID)
		}
		return false
	}

	for _, r := range rejected {
		c.reject(r)
	}
	for _, s := range accepted {
		c.accept(s)
	}
	return len(accepted) > 0
}

func (c *Controller) matchingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.geotagOnly
}

// disableMatching switches the run to geotag-only mode. Detected once;
// matching is never re-attempted within this run.
func (c *Controller) disableMatching(err error) {
	c.mu.Lock()
	already := c.geotagOnly
	c.geotagOnly = true
	c.mu.Unlock()
	if already {
		return
	}
	monitoring.Logf("window %s: %v; continuing geotag-only", c.runID, err)
	if c.sink != nil {
		c.sink(estimate.NewRejection(err, estimate.SourceFeature, nil))
	}
}

func (c *Controller) accept(s estimate.SpeedSample) {
	c.mu.Lock()
	c.pool.Append(s)
	seq := c.pool.Len()
	c.mu.Unlock()

	monitoring.Debugf("window %s: accepted %s sample %.2f m/s", c.runID, s.Source, s.SpeedMPS)
	if c.onSample != nil {
		c.onSample(seq, s)
	}
}

func (c *Controller) reject(r estimate.Rejection) {
	c.mu.Lock()
	c.rejections++
	c.mu.Unlock()

	monitoring.Debugf("window %s: rejected %s observation (%s): %s", c.runID, r.Source, r.Reason, r.Detail)
	if c.sink != nil {
		c.sink(r)
	}
}

func (c *Controller) finalize() (*estimate.FusionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateFinalized

	if c.latest == nil {
		monitoring.Logf("window %s: finalized with no valid estimate (%d rejections)", c.runID, c.rejections)
		return nil, ErrNoValidEstimate
	}

	cp := c.latest.Clone()
	cp.WindowEnd = c.clock.Now()
	c.latest = cp

	monitoring.Logf("window %s: finalized at %.2f m/s (%d samples, %d rejections)",
		c.runID, cp.FinalSpeedMPS, cp.SampleCount, c.rejections)
	return cp.Clone(), nil
}
