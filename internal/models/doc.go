// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the catalog and verification data structures
// shared across Airwave's components: the curated music catalog
// (Artist/Work/Recording/LibraryFile), the broadcast log and station
// tables, the identity-resolution learning structures (Identity Bridge,
// Discovery Queue), the append-only verification audit trail, and the
// recording-selection policy tables.
//
// This package holds plain data structures only; persistence lives in
// internal/database, resolution logic in internal/matcher and
// internal/normalizer.
package models
