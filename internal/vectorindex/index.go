// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorindex

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/logging"
)

// batchSize caps the number of strings sent to the embedding service in
// a single request; Add and SearchBatch both chunk at this size.
const batchSize = 500

// Track is one catalog Recording to index.
type Track struct {
	RecordingID uuid.UUID
	CleanArtist string
	CleanTitle  string
}

// Query is one "{artist} - {title}" pair to search for.
type Query struct {
	CleanArtist string
	CleanTitle  string
}

// Candidate is a search result: a Recording and its cosine distance
// from the query, ascending (closer first).
type Candidate struct {
	RecordingID uuid.UUID
	Distance    float64
}

// Index is the process-global VectorIndex. Reads (SearchBatch) take a
// shared lock; writes (Add) take an exclusive lock only for the
// duration of the in-memory map mutation, never across the embedding
// network call. Reads take no lock beyond the RWMutex read side.
type Index struct {
	mu      sync.RWMutex
	client  EmbeddingClient
	vectors map[uuid.UUID][]float32
	path    string
}

// New builds an Index backed by client, optionally persisted to path
// (empty disables persistence).
func New(client EmbeddingClient, path string) *Index {
	return &Index{
		client:  client,
		vectors: make(map[uuid.UUID][]float32),
		path:    path,
	}
}

// Load restores a previously-saved snapshot from disk, if one exists.
// Absence of the file is not an error: a fresh index starts empty.
func (idx *Index) Load() error {
	if idx.path == "" {
		return nil
	}
	f, err := os.Open(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open vector index snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	vectors := make(map[uuid.UUID][]float32)
	if err := gob.NewDecoder(f).Decode(&vectors); err != nil {
		return fmt.Errorf("decode vector index snapshot: %w", err)
	}

	idx.mu.Lock()
	idx.vectors = vectors
	idx.mu.Unlock()

	logging.Info().Int("vectors", len(vectors)).Str("path", idx.path).Msg("loaded vector index snapshot")
	return nil
}

// Save writes the current index to disk atomically (write to a temp
// file, then rename).
func (idx *Index) Save() error {
	if idx.path == "" {
		return nil
	}

	idx.mu.RLock()
	snapshot := make(map[uuid.UUID][]float32, len(idx.vectors))
	for id, v := range idx.vectors {
		snapshot[id] = v
	}
	idx.mu.RUnlock()

	tmp := idx.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector index snapshot: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode vector index snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vector index snapshot: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("rename vector index snapshot: %w", err)
	}
	return nil
}

// Add upserts tracks into the index. Within a single call, a duplicate
// RecordingID keeps the last occurrence's vector.
func (idx *Index) Add(ctx context.Context, tracks []Track) error {
	for start := 0; start < len(tracks); start += batchSize {
		end := start + batchSize
		if end > len(tracks) {
			end = len(tracks)
		}
		chunk := tracks[start:end]

		texts := make([]string, len(chunk))
		for i, t := range chunk {
			texts[i] = t.CleanArtist + " - " + t.CleanTitle
		}

		vectors, err := idx.client.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed track batch: %w", err)
		}

		idx.mu.Lock()
		for i, v := range vectors {
			idx.vectors[chunk[i].RecordingID] = v
		}
		idx.mu.Unlock()
	}
	return nil
}

// SearchBatch returns, for each query in order, up to k nearest
// Recordings by ascending cosine distance. A query with no indexed
// vectors at all returns an empty (not nil-panicking) slice.
func (idx *Index) SearchBatch(ctx context.Context, queries []Query, k int) ([][]Candidate, error) {
	results := make([][]Candidate, len(queries))

	for start := 0; start < len(queries); start += batchSize {
		end := start + batchSize
		if end > len(queries) {
			end = len(queries)
		}
		chunk := queries[start:end]

		texts := make([]string, len(chunk))
		for i, q := range chunk {
			texts[i] = q.CleanArtist + " - " + q.CleanTitle
		}

		vectors, err := idx.client.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed query batch: %w", err)
		}

		idx.mu.RLock()
		for i, v := range vectors {
			results[start+i] = idx.topK(v, k)
		}
		idx.mu.RUnlock()
	}
	return results, nil
}

// topK must be called with idx.mu held (read or write).
func (idx *Index) topK(query []float32, k int) []Candidate {
	type scored struct {
		id   uuid.UUID
		dist float64
	}
	all := make([]scored, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		all = append(all, scored{id: id, dist: cosineDistance(query, v)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	if len(all) > k {
		all = all[:k]
	}

	out := make([]Candidate, len(all))
	for i, s := range all {
		out[i] = Candidate{RecordingID: s.id, Distance: s.dist}
	}
	return out
}

// cosineDistance returns 1 - cosine_similarity(a, b), in [0, 2]. A
// zero-norm vector is treated as maximally distant from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
