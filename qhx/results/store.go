package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/classify"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/parallel"
)

// Store persists classification batches so intermediate results survive a
// restart and can be handed to downstream reporting. One row per object per
// batch; the per-band candidates ride along as JSON.
type Store struct {
	db *sql.DB
}

// Batch is a round-tripped batch: the stored slots plus batch metadata.
type Batch struct {
	ID      uuid.UUID
	TakenAt time.Time
	Elapsed time.Duration
	Slots   []StoredResult
}

// StoredResult is one object's persisted slot.
type StoredResult struct {
	ObjectID       string
	Label          classify.Label
	CombinedPeriod float64
	HasCombined    bool
	PerBand        map[lightcurve.Band]StoredCandidate
	FailureReason  string
}

// StoredCandidate is the JSON shape of one band's candidate period.
type StoredCandidate struct {
	Period   float64 `json:"period"`
	Strength float64 `json:"strength"`
	LowerErr float64 `json:"lower_err"`
	UpperErr float64 `json:"upper_err"`
}

// Failed reports whether the slot recorded a pipeline failure.
func (r StoredResult) Failed() bool { return r.FailureReason != "" }

// Open opens or initializes a results database at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// init sets up the results tables.
func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS result_batches (
		id TEXT PRIMARY KEY UNIQUE,
		taken_at TEXT NOT NULL,
		elapsed_ns INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create result_batches table: %w", err)
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS classification_results (
		batch_id TEXT NOT NULL,
		object_id TEXT NOT NULL,
		label TEXT NOT NULL,
		combined_period REAL,
		per_band TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (batch_id, object_id)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create classification_results table: %w", err)
	}

	return nil
}

// SaveBatch persists every slot of a batch under a fresh batch ID.
func (s *Store) SaveBatch(batch *parallel.BatchResult) (uuid.UUID, error) {
	batchID := uuid.New()

	tx, err := s.db.Begin()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be a no-op if transaction is committed

	takenAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		"INSERT INTO result_batches (id, taken_at, elapsed_ns) VALUES (?, ?, ?)",
		batchID.String(), takenAt, batch.Elapsed.Nanoseconds(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert batch: %w", err)
	}

	for objectID, slot := range batch.Results {
		label := classify.LabelNotSignificant
		var combined sql.NullFloat64
		perBand := map[lightcurve.Band]StoredCandidate{}
		failure := ""

		if slot.Err != nil {
			failure = slot.Err.Error()
		}
		if slot.Result != nil {
			label = slot.Result.Label
			if slot.Result.HasCombined {
				combined = sql.NullFloat64{Float64: slot.Result.CombinedPeriod, Valid: true}
			}
			for band, cand := range slot.Result.PerBand {
				perBand[band] = StoredCandidate{
					Period:   cand.Period,
					Strength: cand.Strength,
					LowerErr: cand.LowerErr,
					UpperErr: cand.UpperErr,
				}
			}
		}

		blob, err := json.Marshal(perBand)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to encode per-band results for object %s: %w", objectID, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO classification_results (batch_id, object_id, label, combined_period, per_band, failure_reason) VALUES (?, ?, ?, ?, ?, ?)",
			batchID.String(), objectID, string(label), combined, string(blob), failure,
		); err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert result for object %s: %w", objectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("batch persisted", "batch_id", batchID, "objects", len(batch.Results))
	return batchID, nil
}

// LoadBatch reads back a persisted batch, objects ordered by ID.
func (s *Store) LoadBatch(batchID uuid.UUID) (*Batch, error) {
	var takenAt string
	var elapsedNs int64
	err := s.db.QueryRow(
		"SELECT taken_at, elapsed_ns FROM result_batches WHERE id = ?", batchID.String(),
	).Scan(&takenAt, &elapsedNs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %s: %w", batchID, err)
	}

	batch := &Batch{ID: batchID, Elapsed: time.Duration(elapsedNs)}
	if ts, err := time.Parse(time.RFC3339Nano, takenAt); err == nil {
		batch.TakenAt = ts
	}

	rows, err := s.db.Query(
		"SELECT object_id, label, combined_period, per_band, failure_reason FROM classification_results WHERE batch_id = ? ORDER BY object_id",
		batchID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read results for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var slot StoredResult
		var label string
		var combined sql.NullFloat64
		var blob string
		if err := rows.Scan(&slot.ObjectID, &label, &combined, &blob, &slot.FailureReason); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		slot.Label = classify.Label(label)
		if combined.Valid {
			slot.CombinedPeriod = combined.Float64
			slot.HasCombined = true
		}
		if err := json.Unmarshal([]byte(blob), &slot.PerBand); err != nil {
			return nil, fmt.Errorf("failed to decode per-band results for object %s: %w", slot.ObjectID, err)
		}
		batch.Slots = append(batch.Slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate result rows: %w", err)
	}

	return batch, nil
}

// ListBatches returns the IDs of every stored batch, newest first.
func (s *Store) ListBatches() ([]uuid.UUID, error) {
	rows, err := s.db.Query("SELECT id FROM result_batches ORDER BY taken_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan batch id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed batch id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
