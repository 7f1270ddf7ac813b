package periodsearch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
)

var testSpec = GridSpec{NTau: 80, NGrid: 800, MinFq: 0.01, MaxFq: 1.0}

// sineCurve builds an irregularly sampled noiseless sinusoid with the given
// period. Jittered cadence keeps even-sampling aliases out of the profile.
func sineCurve(t *testing.T, band lightcurve.Band, n int, period float64, withErrs bool) *lightcurve.LightCurveRecord {
	t.Helper()
	times := make([]float64, n)
	mags := make([]float64, n)
	var errs []float64
	if withErrs {
		errs = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		ti := 2*float64(i) + 0.4*math.Sin(1.7*float64(i))
		times[i] = ti
		mags[i] = 19.0 + 0.5*math.Sin(2*math.Pi*ti/period)
		if withErrs {
			errs[i] = 0.05
		}
	}
	lc, err := lightcurve.NewRecord("synthetic", band, times, mags, errs)
	require.NoError(t, err)
	return lc
}

func TestGridSpec(t *testing.T) {
	t.Run("canonicalize sorts inverted bounds", func(t *testing.T) {
		// Historical call convention: provided_minfq=2000, provided_maxfq=10.
		c := GridSpec{NTau: 10, NGrid: 100, MinFq: 2000, MaxFq: 10}.Canonicalize()
		assert.Equal(t, 10.0, c.MinFq)
		assert.Equal(t, 2000.0, c.MaxFq)
	})

	t.Run("validates resolution and bounds", func(t *testing.T) {
		assert.NoError(t, testSpec.Validate())
		assert.ErrorIs(t, GridSpec{NTau: 1, NGrid: 100, MinFq: 0.01, MaxFq: 1}.Validate(), ErrConfig)
		assert.ErrorIs(t, GridSpec{NTau: 10, NGrid: 1, MinFq: 0.01, MaxFq: 1}.Validate(), ErrConfig)
		assert.ErrorIs(t, GridSpec{NTau: 10, NGrid: 100, MinFq: -0.5, MaxFq: 1}.Validate(), ErrConfig)
		assert.ErrorIs(t, GridSpec{NTau: 10, NGrid: 100, MinFq: 0.3, MaxFq: 0.3}.Validate(), ErrConfig)
	})
}

func TestSearchRecoversInjectedPeriod(t *testing.T) {
	engine := NewEngine()
	lc := sineCurve(t, 1, 50, 10.0, false)

	cand, err := engine.Search(lc, testSpec, false)
	require.NoError(t, err)

	// The peak must land within the grid resolution of the injected period.
	assert.InDelta(t, 10.0, cand.Period, 0.2)
	assert.Greater(t, cand.Strength, 0.8)
	assert.Greater(t, cand.LowerErr, 0.0)
	assert.Greater(t, cand.UpperErr, 0.0)
	assert.Equal(t, lightcurve.Band(1), cand.Band)
}

func TestSearchFrequencyOrderInvariance(t *testing.T) {
	engine := NewEngine()
	lc := sineCurve(t, 0, 50, 10.0, false)

	forward, err := engine.Search(lc, GridSpec{NTau: 40, NGrid: 400, MinFq: 0.01, MaxFq: 1.0}, false)
	require.NoError(t, err)
	inverted, err := engine.Search(lc, GridSpec{NTau: 40, NGrid: 400, MinFq: 1.0, MaxFq: 0.01}, false)
	require.NoError(t, err)

	assert.Equal(t, forward, inverted)
}

func TestSearchErrorWeighting(t *testing.T) {
	engine := NewEngine()

	t.Run("weights by inverse variance when errors are present", func(t *testing.T) {
		lc := sineCurve(t, 0, 50, 10.0, true)
		cand, err := engine.Search(lc, testSpec, true)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, cand.Period, 0.2)
	})

	t.Run("fails when errors are requested but absent", func(t *testing.T) {
		lc := sineCurve(t, 0, 50, 10.0, false)
		_, err := engine.Search(lc, testSpec, true)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("fails on non-positive errors", func(t *testing.T) {
		lc := sineCurve(t, 0, 50, 10.0, true)
		lc.MagErrs[10] = 0
		_, err := engine.Search(lc, testSpec, true)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestSearchDegenerateInputs(t *testing.T) {
	engine := NewEngine()

	t.Run("too few samples", func(t *testing.T) {
		lc := sineCurve(t, 0, 5, 10.0, false)
		_, err := engine.Search(lc, testSpec, false)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("zero-span baseline", func(t *testing.T) {
		times := make([]float64, 20)
		mags := make([]float64, 20)
		for i := range times {
			times[i] = 5.0
			mags[i] = 19.0
		}
		lc, err := lightcurve.NewRecord("flat", 0, times, mags, nil)
		require.NoError(t, err)
		_, err = engine.Search(lc, testSpec, false)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("invalid spec", func(t *testing.T) {
		lc := sineCurve(t, 0, 50, 10.0, false)
		_, err := engine.Search(lc, GridSpec{NTau: 0, NGrid: 0}, false)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("configurable minimum sample count", func(t *testing.T) {
		engine := NewEngine(WithMinSamples(100))
		lc := sineCurve(t, 0, 50, 10.0, false)
		_, err := engine.Search(lc, testSpec, false)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestSearchIsPureAcrossCalls(t *testing.T) {
	engine := NewEngine()
	lc := sineCurve(t, 0, 50, 10.0, false)
	spec := GridSpec{NTau: 30, NGrid: 300, MinFq: 0.01, MaxFq: 1.0}

	first, err := engine.Search(lc, spec, false)
	require.NoError(t, err)
	second, err := engine.Search(lc, spec, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The input record is not reordered in place.
	assert.Equal(t, 2*float64(1)+0.4*math.Sin(1.7), lc.Times[1])
}
