package datamanager

import (
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"
)

// objectIndex tracks which loaded rows belong to which object. Row membership
// is kept as a roaring bitmap of row indices per object, and object IDs are
// additionally held in a patricia tree so ID listings come back in sorted
// order and prefix queries (survey tile prefixes, catalog shards) stay O(k).
type objectIndex struct {
	mu   sync.RWMutex
	rows map[string]*roaring.Bitmap
	ids  *radix.Tree
}

func newObjectIndex() *objectIndex {
	return &objectIndex{
		rows: make(map[string]*roaring.Bitmap),
		ids:  radix.New(),
	}
}

// addRow records that row rowIdx belongs to the given object.
func (ix *objectIndex) addRow(objectID string, rowIdx uint32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	bm, ok := ix.rows[objectID]
	if !ok {
		bm = roaring.New()
		ix.rows[objectID] = bm
		ix.ids.Insert(objectID, struct{}{})
	}
	bm.Add(rowIdx)
}

// rowCount returns how many source rows were grouped under the object.
func (ix *objectIndex) rowCount(objectID string) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bm, ok := ix.rows[objectID]
	if !ok {
		return 0
	}
	return bm.GetCardinality()
}

// objectIDs returns every indexed object ID in sorted order.
func (ix *objectIndex) objectIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, ix.ids.Len())
	ix.ids.Walk(func(key string, _ interface{}) bool {
		out = append(out, key)
		return false
	})
	return out
}

// idsWithPrefix returns the sorted object IDs sharing a prefix.
func (ix *objectIndex) idsWithPrefix(prefix string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	ix.ids.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		out = append(out, key)
		return false
	})
	return out
}
