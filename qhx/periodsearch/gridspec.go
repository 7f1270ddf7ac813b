package periodsearch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates an invalid grid specification or error weighting
	// requested for a band that carries no errors.
	ErrConfig = errors.New("search config error")
	// ErrInsufficientData indicates a light curve too sparse or degenerate
	// for the grid search to return a meaningful period.
	ErrInsufficientData = errors.New("insufficient data")
)

// GridSpec defines the resolution and frequency bounds of the search grid.
//
// Callers following the historical convention pass the frequency bounds in
// inverted order (provided_minfq larger than provided_maxfq, e.g. 2000 and
// 10); Canonicalize accepts either order and sorts the pair, so the effective
// lower bound is always the numerically smaller value. This is a deliberate
// decision, not an assumption about which literal the caller meant.
type GridSpec struct {
	NTau  int
	NGrid int
	MinFq float64
	MaxFq float64
}

// Canonicalize returns a copy with the frequency bounds in ascending order.
func (s GridSpec) Canonicalize() GridSpec {
	if s.MinFq > s.MaxFq {
		s.MinFq, s.MaxFq = s.MaxFq, s.MinFq
	}
	return s
}

// Validate checks the canonicalized spec. Equal bounds are rejected: a
// zero-width frequency range cannot rank candidate periods.
func (s GridSpec) Validate() error {
	c := s.Canonicalize()
	if c.NTau < 2 {
		return fmt.Errorf("%w: ntau must be at least 2, got %d", ErrConfig, c.NTau)
	}
	if c.NGrid < 2 {
		return fmt.Errorf("%w: ngrid must be at least 2, got %d", ErrConfig, c.NGrid)
	}
	if c.MinFq <= 0 {
		return fmt.Errorf("%w: frequency bounds must be positive, got min %g", ErrConfig, c.MinFq)
	}
	if c.MinFq >= c.MaxFq {
		return fmt.Errorf("%w: frequency bounds %g and %g do not span a range", ErrConfig, s.MinFq, s.MaxFq)
	}
	return nil
}

// FrequencyStep returns the spacing of the canonicalized frequency grid.
func (s GridSpec) FrequencyStep() float64 {
	c := s.Canonicalize()
	return (c.MaxFq - c.MinFq) / float64(c.NGrid-1)
}
