// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database is the CatalogStore (component C2): the transactional
// home for Artist, Work, WorkArtist, Recording, LibraryFile, Station,
// BroadcastLog, IdentityBridge, DiscoveryQueue, VerificationAudit, the
// preference/policy tables, ProposedSplit, and ArtistAlias.
//
// # Architecture
//
//   - database.go: connection lifecycle (open, extension preload, close)
//   - database_extensions.go / database_extensions_core.go: table-driven
//     DuckDB extension install/load/verify with retry and hard timeouts
//   - database_schema.go: table and index definitions
//   - database_connection.go: connection pool tuning, error classification
//   - database_utils.go: profiling, checkpoint, record counts
//   - migrations.go: versioned post-release schema migration support
//   - query_builder.go / query_helpers.go: generic WHERE-clause and
//     row-scanning helpers shared by CRUD and search code
//   - search_fuzzy.go: SQL-side fuzzy candidate shortlisting via the
//     rapidfuzz extension, feeding UpsertWork's Go-side matchutil.Ratio scoring
//   - catalog_crud.go: upsert_artist / upsert_work / upsert_recording /
//     link_work_artists / attach_library_file
//   - identity_crud.go: IdentityBridge and DiscoveryQueue persistence
//    
//   - audit_crud.go: VerificationAudit, ProposedSplit, ArtistAlias, and
//     the Station/BroadcastLog/policy-table persistence
//
// The package wraps a single embedded DuckDB file opened through
// database/sql. DuckDB accepts only one writer at a time; mutating
// operations either run under db.writeMu or retry on "Transaction
// conflict" by rolling back the single failing statement.
package database
