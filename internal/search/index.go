package search

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrVectorDimensionMismatch indicates a vector of the wrong width.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// VectorEntry is one embedded chunk of a knowledge node.
type VectorEntry struct {
	ID       string
	NodeID   string
	NodeType string
	Chunk    string
	// Position is 0 for the title, 1..n for content chunks and -1 for tags.
	Position int
	Vector   []float32
}

// VectorResult is a scored index match.
type VectorResult struct {
	Entry VectorEntry
	Score float64
}

// VectorIndex is an in-memory cosine index over normalised vectors.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]VectorEntry
}

// NewVectorIndex creates an empty index. The dimension is fixed by the first
// insert when dimension is 0.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{dimension: dimension, entries: make(map[string]VectorEntry)}
}

// Insert adds or replaces entries.
func (x *VectorIndex) Insert(entries ...VectorEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if x.dimension == 0 {
			x.dimension = len(e.Vector)
		}
		if len(e.Vector) != x.dimension {
			return fmt.Errorf("%w: expected %d, got %d for %s", ErrVectorDimensionMismatch, x.dimension, len(e.Vector), e.ID)
		}
		e.Vector = normalizeVector(e.Vector)
		x.entries[e.ID] = e
	}
	return nil
}

// Get returns an entry by id.
func (x *VectorIndex) Get(id string) (VectorEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[id]
	return e, ok
}

// Search scores every entry accepted by keep against query, best first.
// Entries of a different width are skipped.
func (x *VectorIndex) Search(query []float32, keep func(VectorEntry) bool) []VectorResult {
	q := normalizeVector(query)

	x.mu.RLock()
	results := make([]VectorResult, 0, len(x.entries))
	for _, e := range x.entries {
		if len(e.Vector) != len(q) {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		results = append(results, VectorResult{Entry: e, Score: dot(q, e.Vector)})
	}
	x.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	return results
}

// DeleteNode removes every entry of a node.
func (x *VectorIndex) DeleteNode(nodeID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.entries {
		if e.NodeID == nodeID {
			delete(x.entries, id)
		}
	}
}

// Clear empties the index.
func (x *VectorIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string]VectorEntry)
}

// Count returns the number of entries and distinct nodes.
func (x *VectorIndex) Count() (entries, nodes int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range x.entries {
		seen[e.NodeID] = struct{}{}
	}
	return len(x.entries), len(seen)
}

// Dimension returns the vector width.
func (x *VectorIndex) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

// dot of two unit vectors is their cosine similarity, clamped for float drift.
func dot(a, b []float32) float64 {
	var d float64
	for i := range a {
		d += float64(a[i]) * float64(b[i])
	}
	return math.Max(-1, math.Min(1, d))
}

func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
