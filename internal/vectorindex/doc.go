// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vectorindex is the VectorIndex (component C3): approximate
// nearest-neighbor search over "{clean_artist} - {clean_title}"
// embeddings, backing the Matcher's (internal/matcher) step 4 vector
// search.
//
// Embeddings come from an external HTTP embedding service (internal/config's
// VectorConfig.Endpoint); that network call is wrapped with
// github.com/sony/gobreaker/v2, so a flaky embedding backend trips
// the breaker and degrades the Matcher to its SQL-only steps instead of
// blocking ingestion.
//
// The index itself is an in-memory map of recording ID to vector, brute-
// force-scored by cosine distance and periodically snapshotted to disk.
// No ANN engine (FAISS/usearch/hnsw bindings) appears anywhere in the
// example corpus this repository is grounded on, so the index is plain
// Go plus encoding/gob — see DESIGN.md for the corresponding
// standard-library justification. Distance thresholds are never
// interpreted here; that is the Matcher's concern.
package vectorindex
