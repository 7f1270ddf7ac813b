package periodsearch

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
)

// tieEps breaks exact ties on the strength profile: when two grid points
// respond equally the longer period (lower frequency) wins, biasing against
// aliases near the dense-sampling edge of the grid.
const tieEps = 1e-12

// Peak is one local maximum of the strength-vs-period profile.
type Peak struct {
	Period   float64
	Strength float64
}

// CandidatePeriod is the per-band output of the grid search.
type CandidatePeriod struct {
	Band     lightcurve.Band
	Period   float64
	Strength float64 // fraction of windowed variance explained at the peak, in [0, 1]
	LowerErr float64 // period minus the lower half-power bound
	UpperErr float64 // upper half-power bound minus period
	// Secondary holds the strongest competing peaks, useful for alias checks
	// downstream.
	Secondary []Peak
}

// Engine evaluates the time-frequency grid statistic. It holds configuration
// only; Search keeps no state across calls and is safe for concurrent use.
type Engine struct {
	minSamples int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMinSamples sets the minimum light-curve length the search accepts.
func WithMinSamples(n int) EngineOption {
	return func(e *Engine) { e.minSamples = n }
}

// NewEngine creates a period search engine with default settings.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{minSamples: qhx.DefaultMinSamples}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinSamples returns the configured minimum sample count.
func (e *Engine) MinSamples() int { return e.minSamples }

// Search runs the grid search over one band's light curve and returns the
// strongest candidate period. The frequency bounds are canonicalized first,
// so passing them in either order yields identical output.
//
// The statistic is a windowed, weighted least-squares sinusoid fit: the lag
// grid places ntau Gaussian windows across the time baseline, each
// (window, frequency) cell scores the fraction of windowed variance a
// sinusoid at that frequency explains, and the per-frequency profile is the
// mean response across windows.
func (e *Engine) Search(lc *lightcurve.LightCurveRecord, spec GridSpec, includeErrors bool) (CandidatePeriod, error) {
	var out CandidatePeriod

	if err := spec.Validate(); err != nil {
		return out, err
	}
	spec = spec.Canonicalize()

	if lc == nil || lc.Len() < e.minSamples {
		n := 0
		if lc != nil {
			n = lc.Len()
		}
		return out, fmt.Errorf("%w: %d samples, need at least %d", ErrInsufficientData, n, e.minSamples)
	}
	if includeErrors && !lc.HasErrors() {
		return out, fmt.Errorf("%w: error weighting requested but band %d carries no magnitude errors", ErrConfig, lc.Band)
	}

	sorted := lc.SortByTime()
	tMin := sorted.Times[0]
	tMax := sorted.Times[len(sorted.Times)-1]
	baseline := tMax - tMin
	if baseline <= 0 {
		return out, fmt.Errorf("%w: zero-span time baseline", ErrInsufficientData)
	}

	weights := make([]float64, sorted.Len())
	if includeErrors {
		for i, sigma := range sorted.MagErrs {
			if sigma <= 0 {
				return out, fmt.Errorf("%w: non-positive magnitude error %g at sample %d", ErrConfig, sigma, i)
			}
			weights[i] = 1 / (sigma * sigma)
		}
	} else {
		for i := range weights {
			weights[i] = 1
		}
	}

	taus := floats.Span(make([]float64, spec.NTau), tMin, tMax)
	freqs := floats.Span(make([]float64, spec.NGrid), spec.MinFq, spec.MaxFq)

	// Window width trades time localization against per-window sample count;
	// a quarter of the baseline keeps tens of points in every window for
	// typical survey cadences.
	sigma := baseline / 4
	power := mat.NewDense(spec.NTau, spec.NGrid, nil)

	u := make([]float64, sorted.Len())
	d := make([]float64, sorted.Len())
	for ti, tau := range taus {
		// Windowed weights and zero-mean magnitudes for this lag.
		uSum := 0.0
		for i, t := range sorted.Times {
			dt := t - tau
			u[i] = weights[i] * math.Exp(-dt*dt/(2*sigma*sigma))
			uSum += u[i]
		}
		if uSum <= 0 {
			continue
		}
		mean := 0.0
		for i, m := range sorted.Mags {
			mean += u[i] * m
		}
		mean /= uSum
		total := 0.0
		for i, m := range sorted.Mags {
			d[i] = m - mean
			total += u[i] * d[i] * d[i]
		}
		if total <= 0 {
			// Constant magnitudes inside the window: no variance to explain.
			continue
		}

		for fi, f := range freqs {
			power.Set(ti, fi, cellResponse(sorted.Times, d, u, total, f))
		}
	}

	// Collapse the lag axis: mean response per frequency.
	profile := make([]float64, spec.NGrid)
	col := make([]float64, spec.NTau)
	for fi := range freqs {
		mat.Col(col, fi, power)
		profile[fi] = stat.Mean(col, nil)
	}

	best := 0
	for fi := 1; fi < len(profile); fi++ {
		// Strictly-greater comparison: the lowest frequency (longest period)
		// wins ties.
		if profile[fi] > profile[best]+tieEps {
			best = fi
		}
	}

	out.Band = sorted.Band
	out.Period = 1 / freqs[best]
	out.Strength = profile[best]
	out.LowerErr, out.UpperErr = peakBounds(freqs, profile, best, spec.FrequencyStep())
	out.Secondary = secondaryPeaks(freqs, profile, best)
	return out, nil
}

// cellResponse scores one (window, frequency) cell: the fraction of the
// windowed variance explained by a least-squares sinusoid at frequency f.
// Uses the Lomb phase offset so the cosine and sine regressors are orthogonal
// under the window weights.
func cellResponse(times, d, u []float64, total, f float64) float64 {
	omega := 2 * math.Pi * f

	var s2, c2 float64
	for i, t := range times {
		s2 += u[i] * math.Sin(2*omega*t)
		c2 += u[i] * math.Cos(2*omega*t)
	}
	tau0 := math.Atan2(s2, c2) / (2 * omega)

	var cc, ss, cd, sd float64
	for i, t := range times {
		theta := omega * (t - tau0)
		c := math.Cos(theta)
		s := math.Sin(theta)
		cc += u[i] * c * c
		ss += u[i] * s * s
		cd += u[i] * d[i] * c
		sd += u[i] * d[i] * s
	}

	explained := 0.0
	if cc > 0 {
		explained += cd * cd / cc
	}
	if ss > 0 {
		explained += sd * sd / ss
	}

	r2 := explained / total
	if r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

// peakBounds derives period error bounds from the half-power width of the
// peak. A peak narrower than the grid falls back to the local grid step.
func peakBounds(freqs, profile []float64, best int, step float64) (lower, upper float64) {
	period := 1 / freqs[best]
	half := profile[best] / 2

	lo := best
	for lo > 0 && profile[lo-1] >= half {
		lo--
	}
	hi := best
	for hi < len(profile)-1 && profile[hi+1] >= half {
		hi++
	}

	// Lower frequency bound maps to the upper period bound and vice versa.
	upper = 1/freqs[lo] - period
	lower = period - 1/freqs[hi]

	// Grid-resolution floor: dP = df / f^2 at the peak.
	floor := step / (2 * freqs[best] * freqs[best])
	if lower < floor {
		lower = floor
	}
	if upper < floor {
		upper = floor
	}
	return lower, upper
}

// secondaryPeaks returns up to three local maxima competing with the main
// peak, strongest first. Bins adjacent to the main peak are excluded.
func secondaryPeaks(freqs, profile []float64, best int) []Peak {
	threshold := profile[best] / 2
	var peaks []Peak
	for fi := 1; fi < len(profile)-1; fi++ {
		if fi >= best-2 && fi <= best+2 {
			continue
		}
		if profile[fi] < threshold {
			continue
		}
		if profile[fi] >= profile[fi-1] && profile[fi] >= profile[fi+1] {
			peaks = append(peaks, Peak{Period: 1 / freqs[fi], Strength: profile[fi]})
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Strength > peaks[j].Strength })
	if len(peaks) > 3 {
		peaks = peaks[:3]
	}
	return peaks
}
