package estimate

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/skyward-data/groundtrack.report/internal/config"
)

// FusionConfig tunes the weighted-fusion stage.
type FusionConfig struct {
	// Variance floors in (m/s)^2 keep weights finite when a kind has
	// produced one sample or a run of very consistent ones. The two kinds
	// are tuned independently but default equal pending calibration.
	VarianceFloorFeature float64
	VarianceFloorGeotag  float64

	// AnomalousDeviation excludes a kind's values farther than this many
	// population standard deviations from the kind mean. Exclusion is
	// recomputed per invocation from the pool snapshot, so it never
	// mutates the pool. Zero disables it.
	AnomalousDeviation float64
}

// FusionConfigFromEstimator derives fusion tuning from the tuning document.
func FusionConfigFromEstimator(cfg *config.EstimatorConfig) FusionConfig {
	return FusionConfig{
		VarianceFloorFeature: cfg.GetVarianceFloorFeature(),
		VarianceFloorGeotag:  cfg.GetVarianceFloorGeotag(),
		AnomalousDeviation:   cfg.GetAnomalousDeviation(),
	}
}

func (c FusionConfig) floor(kind SourceKind) float64 {
	if kind == SourceFeature {
		return c.VarianceFloorFeature
	}
	return c.VarianceFloorGeotag
}

// KindStats summarises one source kind's contribution to a fusion result.
type KindStats struct {
	Count    int     `json:"count"`          // samples of this kind in the pool
	Used     int     `json:"used"`           // samples surviving outlier exclusion
	MeanMPS  float64 `json:"mean_mps"`       // mean of used speeds
	Variance float64 `json:"variance"`       // floored empirical variance
	Weight   float64 `json:"weight"`         // 1 / Variance, per sample
}

// FusionResult is one recomputation of the fused speed over the pool.
type FusionResult struct {
	FinalSpeedMPS    float64                  `json:"final_speed_mps"`
	CombinedVariance float64                  `json:"combined_variance"`
	SampleCount      int                      `json:"sample_count"` // samples in the weighted mean
	PoolSize         int                      `json:"pool_size"`    // all samples in the pool
	WindowStart      time.Time                `json:"window_start"`
	WindowEnd        time.Time                `json:"window_end"`
	Kinds            map[SourceKind]KindStats `json:"kinds"`
}

// Clone returns an independent copy. The Kinds map is duplicated so callers
// holding a result cannot reach into a live one.
func (r *FusionResult) Clone() *FusionResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Kinds != nil {
		cp.Kinds = make(map[SourceKind]KindStats, len(r.Kinds))
		for k, v := range r.Kinds {
			cp.Kinds[k] = v
		}
	}
	return &cp
}

// kindOrder fixes iteration order so results are bit-identical across
// invocations on the same pool.
var kindOrder = []SourceKind{SourceFeature, SourceGeotag}

// Fuse combines the pool snapshot into one inverse-variance weighted speed.
//
// Each sample's weight is the inverse of its kind's current empirical
// variance (floored), so an erratic estimation method is automatically
// down-weighted against a consistent one without hand-tuned trust scores.
// Fuse is a pure function of its arguments: re-invoking on an unchanged
// snapshot yields an identical result.
func Fuse(samples []SpeedSample, cfg FusionConfig, windowStart, windowEnd time.Time) (*FusionResult, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyPool
	}

	byKind := make(map[SourceKind][]float64, len(kindOrder))
	for _, s := range samples {
		byKind[s.Source] = append(byKind[s.Source], s.SpeedMPS)
	}

	kinds := make(map[SourceKind]KindStats, len(byKind))
	weightByKind := make(map[SourceKind]float64, len(byKind))
	usedByKind := make(map[SourceKind]map[float64]int, len(byKind))

	for _, kind := range kindOrder {
		speeds := byKind[kind]
		if len(speeds) == 0 {
			continue
		}

		used := excludeAnomalous(speeds, cfg.AnomalousDeviation)

		variance := cfg.floor(kind)
		if len(used) >= 2 {
			if v := stat.Variance(used, nil); v > variance {
				variance = v
			}
		}
		weight := 1 / variance

		kinds[kind] = KindStats{
			Count:    len(speeds),
			Used:     len(used),
			MeanMPS:  stat.Mean(used, nil),
			Variance: variance,
			Weight:   weight,
		}
		weightByKind[kind] = weight

		allowed := make(map[float64]int, len(used))
		for _, v := range used {
			allowed[v]++
		}
		usedByKind[kind] = allowed
	}

	// Accumulate in pool order so summation order is deterministic.
	values := make([]float64, 0, len(samples))
	weights := make([]float64, 0, len(samples))
	for _, s := range samples {
		allowed := usedByKind[s.Source]
		if allowed[s.SpeedMPS] == 0 {
			continue // excluded as anomalous for this invocation
		}
		allowed[s.SpeedMPS]--
		values = append(values, s.SpeedMPS)
		weights = append(weights, weightByKind[s.Source])
	}

	var sumWeights float64
	for _, w := range weights {
		sumWeights += w
	}

	return &FusionResult{
		FinalSpeedMPS:    stat.Mean(values, weights),
		CombinedVariance: 1 / sumWeights,
		SampleCount:      len(values),
		PoolSize:         len(samples),
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		Kinds:            kinds,
	}, nil
}

// excludeAnomalous drops values farther than dev population standard
// deviations from the mean. Never drops anything when dev is zero, when
// there are fewer than two values, or when the spread is zero.
func excludeAnomalous(speeds []float64, dev float64) []float64 {
	if dev <= 0 || len(speeds) < 2 {
		return speeds
	}

	mean := stat.Mean(speeds, nil)
	sd := stat.PopStdDev(speeds, nil)
	if sd == 0 {
		return speeds
	}

	kept := make([]float64, 0, len(speeds))
	for _, v := range speeds {
		if math.Abs(v-mean) > dev*sd {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		// A cutoff tighter than the spread itself is no basis for
		// discarding everything.
		return speeds
	}
	return kept
}
