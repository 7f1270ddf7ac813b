package datamanager

import (
	"errors"
	"fmt"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
)

var (
	// ErrLoad indicates an unreadable or malformed source. A failed load
	// leaves the manager's previous state untouched.
	ErrLoad = errors.New("load error")
	// ErrNotFound indicates a lookup of an unknown object or band.
	ErrNotFound = errors.New("not found")
)

// RowSource yields an already-materialized tabular dataset. On-disk formats
// (parquet, CSV, databases) are an external collaborator's concern; the
// manager only consumes a row iterable.
type RowSource interface {
	Rows() ([]lightcurve.RawRow, error)
}

// SliceSource adapts an in-memory row slice to the RowSource interface.
type SliceSource []lightcurve.RawRow

// Rows returns the underlying rows. A nil row is treated as a malformed
// source rather than being skipped.
func (s SliceSource) Rows() ([]lightcurve.RawRow, error) {
	for i, row := range s {
		if row == nil {
			return nil, fmt.Errorf("%w: nil row at index %d", ErrLoad, i)
		}
	}
	return s, nil
}
