package lightcurve

import (
	"errors"
	"fmt"
	"sort"
)

// Common error types used across pipeline packages
var (
	// ErrSchema indicates a mismatch between the configured mappings and the
	// raw survey table (missing column, unmapped filter label, bad value).
	ErrSchema = errors.New("schema mapping error")
)

// Band is a normalized photometric filter code. Raw survey filter labels are
// translated to Band values through a FilterMapping.
type Band int

// FilterMapping maps raw survey filter labels to normalized band codes.
// It must be total over the labels present in the dataset: an unmapped label
// is a schema error, never silently dropped.
type FilterMapping map[string]Band

// LightCurveRecord holds one object's brightness measurements in one band.
// Times, Mags and MagErrs are aligned index-wise; MagErrs is nil when the
// survey carries no per-point uncertainties.
type LightCurveRecord struct {
	ObjectID string
	Band     Band
	Times    []float64
	Mags     []float64
	MagErrs  []float64
}

// NewRecord builds a record and enforces the length-equality invariant.
// magErrs may be nil.
func NewRecord(objectID string, band Band, times, mags, magErrs []float64) (*LightCurveRecord, error) {
	if len(times) != len(mags) {
		return nil, fmt.Errorf("%w: times (%d) and mags (%d) differ in length for object %s", ErrSchema, len(times), len(mags), objectID)
	}
	if magErrs != nil && len(magErrs) != len(mags) {
		return nil, fmt.Errorf("%w: mag errors (%d) and mags (%d) differ in length for object %s", ErrSchema, len(magErrs), len(mags), objectID)
	}
	return &LightCurveRecord{
		ObjectID: objectID,
		Band:     band,
		Times:    times,
		Mags:     mags,
		MagErrs:  magErrs,
	}, nil
}

// Len returns the number of samples in the light curve.
func (lc *LightCurveRecord) Len() int { return len(lc.Times) }

// HasErrors reports whether per-point magnitude errors are present.
func (lc *LightCurveRecord) HasErrors() bool { return lc.MagErrs != nil }

// Baseline returns the time span covered by the samples. The record does not
// need to be sorted first.
func (lc *LightCurveRecord) Baseline() float64 {
	if len(lc.Times) == 0 {
		return 0
	}
	min, max := lc.Times[0], lc.Times[0]
	for _, t := range lc.Times[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return max - min
}

// SortByTime returns a copy of the record with samples ordered by timestamp.
// Input tables are not required to be time-ordered; the period search sorts
// before evaluating the grid.
func (lc *LightCurveRecord) SortByTime() *LightCurveRecord {
	n := lc.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return lc.Times[idx[i]] < lc.Times[idx[j]] })

	out := &LightCurveRecord{
		ObjectID: lc.ObjectID,
		Band:     lc.Band,
		Times:    make([]float64, n),
		Mags:     make([]float64, n),
	}
	if lc.MagErrs != nil {
		out.MagErrs = make([]float64, n)
	}
	for i, j := range idx {
		out.Times[i] = lc.Times[j]
		out.Mags[i] = lc.Mags[j]
		if lc.MagErrs != nil {
			out.MagErrs[i] = lc.MagErrs[j]
		}
	}
	return out
}
