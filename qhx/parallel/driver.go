package parallel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/classify"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/datamanager"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/periodsearch"
)

// ObjectResult is one object's slot in the batch output. Err is set when the
// object's pipeline failed; BandErrs records bands that were skipped without
// failing the object (sparse bands, zero baselines).
type ObjectResult struct {
	ObjectID string
	Result   *classify.ClassificationResult
	BandErrs map[lightcurve.Band]error
	Err      error
}

// Failed reports whether this object's pipeline produced no result.
func (r *ObjectResult) Failed() bool { return r.Err != nil }

// BatchResult maps every requested object ID to its result slot, regardless
// of completion order or failures.
type BatchResult struct {
	Results   map[string]*ObjectResult
	Elapsed   time.Duration
	Processed int64
	Failed    int64
}

// Get returns the result slot for an object ID.
func (b *BatchResult) Get(objectID string) (*ObjectResult, bool) {
	r, ok := b.Results[objectID]
	return r, ok
}

// Driver fans the per-object pipeline out across a fixed-size worker pool.
// Workers share nothing mutable beyond the read-only grouped dataset; each
// object runs lookup, per-band search and classification to completion
// before the worker takes the next ID.
type Driver struct {
	workers       int
	engine        *periodsearch.Engine
	classifier    *classify.Classifier
	includeErrors bool
	log           *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithWorkerCount sets the worker pool size. Values below 1 are clamped.
func WithWorkerCount(n int) DriverOption {
	return func(d *Driver) {
		if n < 1 {
			n = 1
		}
		d.workers = n
	}
}

// WithIncludeErrors enables error-weighted searches for every band.
func WithIncludeErrors(on bool) DriverOption {
	return func(d *Driver) { d.includeErrors = on }
}

// WithDriverLogger sets the structured logger used for batch diagnostics.
func WithDriverLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) { d.log = logger }
}

// NewDriver creates a parallel driver around a search engine and classifier.
func NewDriver(engine *periodsearch.Engine, classifier *classify.Classifier, opts ...DriverOption) *Driver {
	d := &Driver{
		workers:    qhx.DefaultWorkerCount,
		engine:     engine,
		classifier: classifier,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunAll executes the per-object pipeline for every requested ID against one
// grid spec. The grid spec is validated up front: an invalid spec aborts the
// batch before any worker starts. Per-object failures are captured into that
// object's slot; cancelling the context marks the remaining queued objects
// with the context error while in-flight objects run to completion.
func (d *Driver) RunAll(ctx context.Context, ds *datamanager.GroupedDataset, objectIDs []string, spec periodsearch.GridSpec) (*BatchResult, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: nil grouped dataset", datamanager.ErrNotFound)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Canonicalize()

	start := time.Now()
	batch := &BatchResult{Results: make(map[string]*ObjectResult, len(objectIDs))}
	var mu sync.Mutex
	var processed, failed int64

	p := pool.New().WithMaxGoroutines(d.workers).WithContext(ctx)
	for _, objectID := range objectIDs {
		p.Go(func(ctx context.Context) error {
			res := d.processObject(ctx, ds, objectID, spec)

			atomic.AddInt64(&processed, 1)
			if res.Failed() {
				atomic.AddInt64(&failed, 1)
				d.log.Warn("object pipeline failed", "object_id", objectID, "error", res.Err)
			}

			mu.Lock()
			batch.Results[objectID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		// Task funcs never return errors; anything here came from the pool
		// context and the affected slots already carry it.
		d.log.Debug("worker pool finished with context error", "error", err)
	}

	// Duplicate IDs collapse onto one slot; every requested ID stays queryable.
	for _, objectID := range objectIDs {
		if _, ok := batch.Results[objectID]; !ok {
			batch.Results[objectID] = &ObjectResult{ObjectID: objectID, Err: ctx.Err()}
		}
	}

	batch.Elapsed = time.Since(start)
	batch.Processed = atomic.LoadInt64(&processed)
	batch.Failed = atomic.LoadInt64(&failed)

	d.log.Info("batch completed",
		"objects", len(batch.Results),
		"processed", batch.Processed,
		"failed", batch.Failed,
		"elapsed", batch.Elapsed)
	return batch, nil
}

// processObject runs the full pipeline for one object. Panics are captured
// into the result slot so a single bad object can never hang or crash the
// batch.
func (d *Driver) processObject(ctx context.Context, ds *datamanager.GroupedDataset, objectID string, spec periodsearch.GridSpec) (res *ObjectResult) {
	res = &ObjectResult{ObjectID: objectID}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker panic processing object %s: %v", objectID, r)
		}
	}()

	// Cancellation aborts objects still queued; in-flight grid searches are
	// not decomposed into cancellable sub-steps.
	select {
	case <-ctx.Done():
		res.Err = ctx.Err()
		return res
	default:
	}

	bands, err := ds.Bands(objectID)
	if err != nil {
		res.Err = err
		return res
	}

	cands := make(map[lightcurve.Band]periodsearch.CandidatePeriod, len(bands))
	bandErrs := make(map[lightcurve.Band]error)
	for _, band := range bands {
		lc, err := ds.LightCurve(objectID, band)
		if err != nil {
			res.Err = err
			return res
		}
		cand, err := d.engine.Search(lc, spec, d.includeErrors)
		if err != nil {
			if errors.Is(err, periodsearch.ErrConfig) {
				// Misconfiguration is fatal to this object's pipeline.
				res.Err = err
				return res
			}
			// Sparse or degenerate band: record and keep the siblings.
			bandErrs[band] = err
			continue
		}
		cands[band] = cand
	}
	if len(bandErrs) > 0 {
		res.BandErrs = bandErrs
	}
	if len(cands) == 0 {
		res.Err = fmt.Errorf("%w: no band of object %s produced a candidate period", periodsearch.ErrInsufficientData, objectID)
		return res
	}

	result := d.classifier.Classify(classify.ObjectPeriods{ObjectID: objectID, Bands: cands})
	res.Result = &result
	return res
}
