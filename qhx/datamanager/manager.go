package datamanager

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
)

// GroupPolicy controls how Group handles rows that fail schema normalization.
type GroupPolicy int

const (
	// FailFast aborts the whole Group call on the first bad row, leaving any
	// previous grouping intact.
	FailFast GroupPolicy = iota
	// SkipAndRecord drops offending rows and records them for inspection.
	SkipAndRecord
)

// BadRow records a source row that could not be normalized under the
// SkipAndRecord policy.
type BadRow struct {
	Index int
	Err   error
}

// GroupedDataset is the immutable per-object, per-band view built by Group.
// It is shared read-only across parallel workers; nothing mutates it after
// grouping completes.
type GroupedDataset struct {
	curves map[string]map[lightcurve.Band]*lightcurve.LightCurveRecord
	index  *objectIndex
}

// LightCurve returns the light curve for one object in one band.
func (g *GroupedDataset) LightCurve(objectID string, band lightcurve.Band) (*lightcurve.LightCurveRecord, error) {
	bands, ok := g.curves[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: object %q", ErrNotFound, objectID)
	}
	lc, ok := bands[band]
	if !ok {
		return nil, fmt.Errorf("%w: object %q has no band %d", ErrNotFound, objectID, band)
	}
	return lc, nil
}

// Bands returns the sorted band codes available for an object.
func (g *GroupedDataset) Bands(objectID string) ([]lightcurve.Band, error) {
	bands, ok := g.curves[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: object %q", ErrNotFound, objectID)
	}
	out := make([]lightcurve.Band, 0, len(bands))
	for b := range bands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ObjectIDs returns every grouped object ID in sorted order.
func (g *GroupedDataset) ObjectIDs() []string { return g.index.objectIDs() }

// IDsWithPrefix returns the sorted object IDs sharing a prefix.
func (g *GroupedDataset) IDsWithPrefix(prefix string) []string {
	return g.index.idsWithPrefix(prefix)
}

// RowCount returns how many source rows were grouped under an object.
func (g *GroupedDataset) RowCount(objectID string) uint64 { return g.index.rowCount(objectID) }

// Len returns the number of grouped objects.
func (g *GroupedDataset) Len() int { return len(g.curves) }

// DataManagerDynamical owns the loaded dataset and exposes per-object,
// per-band light curves on demand. The schema (column names, filter labels,
// grouping key) is configured eagerly at construction and validated there,
// never resolved implicitly at use time.
type DataManagerDynamical struct {
	mu       sync.RWMutex
	cols     lightcurve.ColumnMapping
	filters  lightcurve.FilterMapping
	groupKey string
	policy   GroupPolicy
	log      *slog.Logger

	rows    []lightcurve.RawRow
	grouped *GroupedDataset
	badRows []BadRow
}

// ManagerOption configures a DataManagerDynamical.
type ManagerOption func(*DataManagerDynamical)

// WithSkipBadRows switches Group from fail-fast to skip-and-record: rows that
// fail normalization are dropped and recorded instead of aborting the call.
func WithSkipBadRows() ManagerOption {
	return func(dm *DataManagerDynamical) { dm.policy = SkipAndRecord }
}

// WithLogger sets the structured logger used for grouping diagnostics.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(dm *DataManagerDynamical) { dm.log = logger }
}

// New creates a data manager for the given schema configuration. Mapping
// problems surface here, before any data is touched.
func New(cols lightcurve.ColumnMapping, filters lightcurve.FilterMapping, groupKey string, opts ...ManagerOption) (*DataManagerDynamical, error) {
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: filter mapping is empty", lightcurve.ErrSchema)
	}
	if groupKey == "" {
		return nil, fmt.Errorf("%w: no grouping key configured", lightcurve.ErrSchema)
	}

	dm := &DataManagerDynamical{
		cols:     cols,
		filters:  filters,
		groupKey: groupKey,
		policy:   FailFast,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm, nil
}

// Load ingests a tabular dataset into the internal row buffer. The load is
// all-or-nothing: on failure the previously loaded rows remain in place.
func (dm *DataManagerDynamical) Load(source RowSource) error {
	if source == nil {
		return fmt.Errorf("%w: nil source", ErrLoad)
	}
	rows, err := source.Rows()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}

	buf := make([]lightcurve.RawRow, len(rows))
	copy(buf, rows)

	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.rows = buf

	dm.log.Debug("dataset loaded", "rows", len(buf))
	return nil
}

// Group partitions the loaded rows by the configured grouping key into an
// immutable GroupedDataset, normalizing each row through the schema mapper.
// It is idempotent: re-invoking replaces the prior grouping. Row order within
// a group follows load order; time-sorting is the period search's concern.
func (dm *DataManagerDynamical) Group() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	type accumulator struct {
		times, mags, errs []float64
		hasErrs           bool
	}

	index := newObjectIndex()
	acc := make(map[string]map[lightcurve.Band]*accumulator)
	var bad []BadRow

	for i, row := range dm.rows {
		rawID, ok := row[dm.groupKey]
		if !ok {
			err := fmt.Errorf("%w: missing grouping column %q at row %d", lightcurve.ErrSchema, dm.groupKey, i)
			if dm.policy == FailFast {
				return err
			}
			bad = append(bad, BadRow{Index: i, Err: err})
			continue
		}
		objectID := fmt.Sprintf("%v", rawID)

		sample, err := lightcurve.Normalize(row, dm.cols, dm.filters)
		if err != nil {
			err = fmt.Errorf("row %d: %w", i, err)
			if dm.policy == FailFast {
				return err
			}
			bad = append(bad, BadRow{Index: i, Err: err})
			continue
		}

		bands, ok := acc[objectID]
		if !ok {
			bands = make(map[lightcurve.Band]*accumulator)
			acc[objectID] = bands
		}
		a, ok := bands[sample.Band]
		if !ok {
			a = &accumulator{hasErrs: sample.HasErr}
			bands[sample.Band] = a
		}
		a.times = append(a.times, sample.Time)
		a.mags = append(a.mags, sample.Mag)
		if sample.HasErr {
			a.errs = append(a.errs, sample.MagErr)
		}
		// A band mixing rows with and without errors loses the error column.
		if a.hasErrs != sample.HasErr {
			a.hasErrs = false
			a.errs = nil
		}
		index.addRow(objectID, uint32(i))
	}

	curves := make(map[string]map[lightcurve.Band]*lightcurve.LightCurveRecord, len(acc))
	for objectID, bands := range acc {
		perBand := make(map[lightcurve.Band]*lightcurve.LightCurveRecord, len(bands))
		for band, a := range bands {
			errs := a.errs
			if !a.hasErrs {
				errs = nil
			}
			lc, err := lightcurve.NewRecord(objectID, band, a.times, a.mags, errs)
			if err != nil {
				return err
			}
			perBand[band] = lc
		}
		curves[objectID] = perBand
	}

	dm.grouped = &GroupedDataset{curves: curves, index: index}
	dm.badRows = bad

	if len(bad) > 0 {
		dm.log.Warn("grouping skipped bad rows", "skipped", len(bad), "objects", len(curves))
	} else {
		dm.log.Debug("grouping completed", "objects", len(curves))
	}
	return nil
}

// LightCurve looks up one object's light curve in one band.
func (dm *DataManagerDynamical) LightCurve(objectID string, band lightcurve.Band) (*lightcurve.LightCurveRecord, error) {
	ds, err := dm.Snapshot()
	if err != nil {
		return nil, err
	}
	return ds.LightCurve(objectID, band)
}

// Snapshot returns the current grouped dataset. The returned value is
// immutable and safe to share across workers.
func (dm *DataManagerDynamical) Snapshot() (*GroupedDataset, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.grouped == nil {
		return nil, fmt.Errorf("%w: dataset has not been grouped", ErrNotFound)
	}
	return dm.grouped, nil
}

// BadRows returns the rows skipped by the last Group call under the
// SkipAndRecord policy.
func (dm *DataManagerDynamical) BadRows() []BadRow {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]BadRow, len(dm.badRows))
	copy(out, dm.badRows)
	return out
}
