// Package vectorindex provides an in-memory flat index of L2-normalized
// embeddings. Scores are cosine similarity computed as a dot product
// over the normalized vectors.
package vectorindex

import (
	"errors"
	"math"
	"sort"
	"sync"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrZeroVector        = errors.New("zero-norm embedding vector")
)

// Hit is one search result.
type Hit struct {
	ChunkID    uint    `json:"chunk_id"`
	DocumentID uint    `json:"document_id"`
	Score      float32 `json:"score"`
}

// Stats describes the index contents.
type Stats struct {
	Vectors   int `json:"vectors"`
	Documents int `json:"documents"`
	Dimension int `json:"dimension"`
}

type entry struct {
	chunkID    uint
	documentID uint
	vec        []float32
}

// Index is safe for concurrent use. The dimension is fixed by the
// first inserted vector.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
}

func New() *Index {
	return &Index{}
}

// Add normalizes vec and stores it under the given chunk and document.
// The vector is copied; the caller may reuse the slice.
func (ix *Index) Add(chunkID, documentID uint, vec []float32) error {
	normalized, err := normalize(vec)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(normalized)
	} else if len(normalized) != ix.dim {
		return ErrDimensionMismatch
	}
	ix.entries = append(ix.entries, entry{chunkID: chunkID, documentID: documentID, vec: normalized})
	return nil
}

// RemoveDocument drops every vector belonging to documentID and reports
// how many were removed.
func (ix *Index) RemoveDocument(documentID uint) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	kept := ix.entries[:0]
	removed := 0
	for _, e := range ix.entries {
		if e.documentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	ix.entries = kept
	return removed
}

// Search returns up to k hits ordered by descending cosine similarity.
// When documentIDs is non-empty only those documents are searched.
func (ix *Index) Search(query []float32, k int, documentIDs []uint) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	normalized, err := normalize(query)
	if err != nil {
		return nil, err
	}

	var filter map[uint]struct{}
	if len(documentIDs) > 0 {
		filter = make(map[uint]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			filter[id] = struct{}{}
		}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return nil, nil
	}
	if len(normalized) != ix.dim {
		return nil, ErrDimensionMismatch
	}

	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		if filter != nil {
			if _, ok := filter[e.documentID]; !ok {
				continue
			}
		}
		hits = append(hits, Hit{ChunkID: e.chunkID, DocumentID: e.documentID, Score: dot(normalized, e.vec)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make(map[uint]struct{}, len(ix.entries))
	for _, e := range ix.entries {
		docs[e.documentID] = struct{}{}
	}
	return Stats{Vectors: len(ix.entries), Documents: len(docs), Dimension: ix.dim}
}

func normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, ErrZeroVector
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
