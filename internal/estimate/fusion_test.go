package estimate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fusionTestConfig() FusionConfig {
	return FusionConfig{
		VarianceFloorFeature: 0.0025,
		VarianceFloorGeotag:  0.0025,
		AnomalousDeviation:   2.0,
	}
}

func sample(kind SourceKind, speed float64) SpeedSample {
	return SpeedSample{Source: kind, SpeedMPS: speed, DistanceMeters: speed * 10, ElapsedSeconds: 10}
}

func window() (time.Time, time.Time) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	return start, start.Add(9 * time.Minute)
}

func TestFuseEmptyPool(t *testing.T) {
	start, end := window()
	_, err := Fuse(nil, fusionTestConfig(), start, end)
	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestFuseEqualVarianceMidpoint(t *testing.T) {
	// One geotag sample at 7600 m/s and one feature sample at 7400 m/s
	// with equal (floored) variance fuse to exactly 7500 m/s.
	start, end := window()
	pool := []SpeedSample{
		sample(SourceGeotag, 7600),
		sample(SourceFeature, 7400),
	}

	res, err := Fuse(pool, fusionTestConfig(), start, end)
	require.NoError(t, err)

	assert.InDelta(t, 7500.0, res.FinalSpeedMPS, 1e-9)
	assert.Equal(t, 2, res.SampleCount)
	assert.Equal(t, 2, res.PoolSize)
	assert.Equal(t, start, res.WindowStart)
	assert.Equal(t, end, res.WindowEnd)
}

func TestFuseSingleSample(t *testing.T) {
	start, end := window()
	cfg := fusionTestConfig()

	res, err := Fuse([]SpeedSample{sample(SourceGeotag, 7512.5)}, cfg, start, end)
	require.NoError(t, err)

	assert.InDelta(t, 7512.5, res.FinalSpeedMPS, 1e-9)
	// A lone sample's variance is the kind floor, and the combined
	// variance is the floor itself.
	assert.InDelta(t, cfg.VarianceFloorGeotag, res.CombinedVariance, 1e-12)
}

func TestFuseIdempotent(t *testing.T) {
	start, end := window()
	pool := []SpeedSample{
		sample(SourceGeotag, 7601.2),
		sample(SourceFeature, 7388.9),
		sample(SourceGeotag, 7543.7),
		sample(SourceFeature, 7420.4),
		sample(SourceGeotag, 7577.1),
	}

	first, err := Fuse(pool, fusionTestConfig(), start, end)
	require.NoError(t, err)
	second, err := Fuse(pool, fusionTestConfig(), start, end)
	require.NoError(t, err)

	// Bit-identical, not merely close.
	assert.Equal(t, first.FinalSpeedMPS, second.FinalSpeedMPS)
	assert.Equal(t, first.CombinedVariance, second.CombinedVariance)
	assert.Equal(t, first.Kinds, second.Kinds)
}

func TestFuseBounded(t *testing.T) {
	start, end := window()
	pools := [][]SpeedSample{
		{sample(SourceGeotag, 7500)},
		{sample(SourceGeotag, 7400), sample(SourceFeature, 7600)},
		{
			sample(SourceGeotag, 7390), sample(SourceGeotag, 7410),
			sample(SourceFeature, 7700), sample(SourceFeature, 7720),
			sample(SourceGeotag, 7405),
		},
	}
	for _, pool := range pools {
		res, err := Fuse(pool, fusionTestConfig(), start, end)
		require.NoError(t, err)

		lo, hi := math.Inf(1), math.Inf(-1)
		for _, s := range pool {
			lo = math.Min(lo, s.SpeedMPS)
			hi = math.Max(hi, s.SpeedMPS)
		}
		assert.GreaterOrEqual(t, res.FinalSpeedMPS, lo)
		assert.LessOrEqual(t, res.FinalSpeedMPS, hi)
	}
}

func TestFuseDownWeightsErraticKind(t *testing.T) {
	// Equal sample counts; the geotag kind is tightly clustered while the
	// feature kind is erratic (cloud cover). The fused speed must sit
	// closer to the consistent kind's mean, with no hand-tuned trust.
	start, end := window()
	pool := []SpeedSample{
		sample(SourceGeotag, 7499), sample(SourceGeotag, 7500), sample(SourceGeotag, 7501),
		sample(SourceFeature, 7100), sample(SourceFeature, 7900), sample(SourceFeature, 7650),
	}

	res, err := Fuse(pool, fusionTestConfig(), start, end)
	require.NoError(t, err)

	geotagMean := res.Kinds[SourceGeotag].MeanMPS
	featureMean := res.Kinds[SourceFeature].MeanMPS
	assert.Less(t, math.Abs(res.FinalSpeedMPS-geotagMean), math.Abs(res.FinalSpeedMPS-featureMean))

	// Lower empirical variance means strictly higher per-sample weight.
	assert.Greater(t, res.Kinds[SourceGeotag].Weight, res.Kinds[SourceFeature].Weight)
}

func TestFuseVarianceFloorPreventsBlowup(t *testing.T) {
	// Identical speeds give zero empirical variance; the floor keeps the
	// weight finite.
	start, end := window()
	pool := []SpeedSample{
		sample(SourceGeotag, 7500), sample(SourceGeotag, 7500), sample(SourceGeotag, 7500),
	}
	cfg := fusionTestConfig()

	res, err := Fuse(pool, cfg, start, end)
	require.NoError(t, err)

	stats := res.Kinds[SourceGeotag]
	assert.Equal(t, cfg.VarianceFloorGeotag, stats.Variance)
	assert.False(t, math.IsInf(stats.Weight, 1))
	assert.InDelta(t, 7500.0, res.FinalSpeedMPS, 1e-9)
}

func TestFuseIndependentFloors(t *testing.T) {
	start, end := window()
	cfg := FusionConfig{
		VarianceFloorFeature: 0.5,
		VarianceFloorGeotag:  0.005,
	}
	pool := []SpeedSample{
		sample(SourceGeotag, 7450),
		sample(SourceFeature, 7550),
	}

	res, err := Fuse(pool, cfg, start, end)
	require.NoError(t, err)

	// weight_geotag = 200, weight_feature = 2: the fused speed leans
	// heavily toward the geotag sample.
	want := (7450*200.0 + 7550*2.0) / 202.0
	assert.InDelta(t, want, res.FinalSpeedMPS, 1e-9)
	assert.InDelta(t, 1.0/202.0, res.CombinedVariance, 1e-12)
}

func TestFuseExcludesAnomalousValues(t *testing.T) {
	// Six tight geotag samples plus one wild outlier: with a 2-sigma
	// cutoff the outlier is excluded from this invocation but stays in
	// the pool.
	start, end := window()
	pool := []SpeedSample{
		sample(SourceGeotag, 7500), sample(SourceGeotag, 7501),
		sample(SourceGeotag, 7499), sample(SourceGeotag, 7500),
		sample(SourceGeotag, 7502), sample(SourceGeotag, 7498),
		sample(SourceGeotag, 8900),
	}

	res, err := Fuse(pool, fusionTestConfig(), start, end)
	require.NoError(t, err)

	stats := res.Kinds[SourceGeotag]
	assert.Equal(t, 7, stats.Count)
	assert.Equal(t, 6, stats.Used)
	assert.Equal(t, 7, res.PoolSize)
	assert.Equal(t, 6, res.SampleCount)
	assert.InDelta(t, 7500.0, res.FinalSpeedMPS, 1.0)
}

func TestFuseOutlierExclusionDisabled(t *testing.T) {
	start, end := window()
	cfg := fusionTestConfig()
	cfg.AnomalousDeviation = 0

	pool := []SpeedSample{
		sample(SourceGeotag, 7500), sample(SourceGeotag, 7501),
		sample(SourceGeotag, 7499), sample(SourceGeotag, 7500),
		sample(SourceGeotag, 7502), sample(SourceGeotag, 7498),
		sample(SourceGeotag, 8900),
	}

	res, err := Fuse(pool, cfg, start, end)
	require.NoError(t, err)
	assert.Equal(t, 7, res.SampleCount)
	assert.Greater(t, res.FinalSpeedMPS, 7510.0)
}

func TestFuseErrorIsEmptyPoolSentinel(t *testing.T) {
	start, end := window()
	_, err := Fuse([]SpeedSample{}, fusionTestConfig(), start, end)
	if !errors.Is(err, ErrEmptyPool) {
		t.Errorf("err = %v, want ErrEmptyPool", err)
	}
}
