package results

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/classify"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/lightcurve"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/parallel"
	"github.com/LSST-SER-SAG-S1/QhX-new-dynamical/qhx/periodsearch"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// testBatch builds a batch with one classified object and one failed slot,
// the two shapes the driver produces.
func testBatch() *parallel.BatchResult {
	return &parallel.BatchResult{
		Results: map[string]*parallel.ObjectResult{
			"1001": {
				ObjectID: "1001",
				Result: &classify.ClassificationResult{
					ObjectID:       "1001",
					Label:          classify.LabelSignificant,
					CombinedPeriod: 10.02,
					HasCombined:    true,
					PerBand: map[lightcurve.Band]periodsearch.CandidatePeriod{
						0: {Band: 0, Period: 10.0, Strength: 0.95, LowerErr: 0.2, UpperErr: 0.25},
						1: {Band: 1, Period: 10.05, Strength: 0.93, LowerErr: 0.2, UpperErr: 0.2},
					},
				},
			},
			"9999": {
				ObjectID: "9999",
				Err:      errors.New("object 9999 not found"),
			},
		},
		Elapsed:   1500 * time.Millisecond,
		Processed: 2,
		Failed:    1,
	}
}

func TestSaveAndLoadBatch(t *testing.T) {
	store := openTestStore(t)

	batchID, err := store.SaveBatch(testBatch())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, batchID)

	loaded, err := store.LoadBatch(batchID)
	require.NoError(t, err)

	assert.Equal(t, batchID, loaded.ID)
	assert.Equal(t, 1500*time.Millisecond, loaded.Elapsed)
	assert.False(t, loaded.TakenAt.IsZero())
	require.Len(t, loaded.Slots, 2)

	// Slots come back ordered by object ID.
	classified, failed := loaded.Slots[0], loaded.Slots[1]

	assert.Equal(t, "1001", classified.ObjectID)
	assert.False(t, classified.Failed())
	assert.Equal(t, classify.LabelSignificant, classified.Label)
	require.True(t, classified.HasCombined)
	assert.Equal(t, 10.02, classified.CombinedPeriod)
	require.Len(t, classified.PerBand, 2)
	assert.Equal(t, StoredCandidate{Period: 10.0, Strength: 0.95, LowerErr: 0.2, UpperErr: 0.25}, classified.PerBand[0])
	assert.Equal(t, StoredCandidate{Period: 10.05, Strength: 0.93, LowerErr: 0.2, UpperErr: 0.2}, classified.PerBand[1])

	assert.Equal(t, "9999", failed.ObjectID)
	assert.True(t, failed.Failed())
	assert.Equal(t, "object 9999 not found", failed.FailureReason)
	assert.False(t, failed.HasCombined)
	assert.Empty(t, failed.PerBand)
}

func TestLoadBatchUnknownID(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LoadBatch(uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListBatches(t *testing.T) {
	store := openTestStore(t)

	ids, err := store.ListBatches()
	require.NoError(t, err)
	assert.Empty(t, ids)

	first, err := store.SaveBatch(testBatch())
	require.NoError(t, err)
	second, err := store.SaveBatch(testBatch())
	require.NoError(t, err)

	ids, err = store.ListBatches()
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
}

func TestSaveBatchIsDurableAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")

	store, err := Open(dbPath)
	require.NoError(t, err)
	batchID, err := store.SaveBatch(testBatch())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadBatch(batchID)
	require.NoError(t, err)
	assert.Len(t, loaded.Slots, 2)
}
