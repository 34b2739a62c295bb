// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalogerr defines the closed set of typed errors Airwave's
// components return. Errors are sentinel values wrapped with
// fmt.Errorf("...: %w", ...) and matched with errors.Is/errors.As
// rather than ad-hoc string comparisons.
package catalogerr

import "errors"

// Sentinel errors. Wrap these with context using fmt.Errorf("%w: ...", Err...)
// and unwrap with errors.Is.
var (
	// ErrNotFound indicates a requested entity or queue item does not
	// exist. Local recovery is not attempted; callers surface a 404-class
	// response.
	ErrNotFound = errors.New("not found")

	// ErrSignatureMismatch indicates a queue entry's raw artist/title no
	// longer hash to the signature a verification action was submitted
	// against (drift or tampering). The action aborts with no side
	// effects.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrBridgeConflict indicates an active Identity Bridge for a
	// signature already points at a different Work than the one a link
	// action is targeting. The operator must undo the existing bridge's
	// originating action before relinking.
	ErrBridgeConflict = errors.New("bridge conflict")

	// ErrBridgeExists indicates DB.CreateBridge was called for a
	// signature that already has a bridge row (active or revoked).
	ErrBridgeExists = errors.New("bridge already exists")

	// ErrParse indicates a malformed CSV row or an undecodable date. The
	// row is skipped and the batch continues; the caller increments an
	// error counter.
	ErrParse = errors.New("parse error")

	// ErrMetadataCorrupt indicates an audio file's tags could not be
	// read. The file is skipped; the scan continues.
	ErrMetadataCorrupt = errors.New("metadata corrupt")

	// ErrIntegrity indicates a concurrent unique-constraint collision
	// during a scan upsert. Only the single failing statement rolls
	// back; the scan continues.
	ErrIntegrity = errors.New("integrity error")

	// ErrCancelled is not a failure; it is the normal terminal status of
	// a cooperatively cancelled long-running task (scan, re-evaluation).
	ErrCancelled = errors.New("cancelled")

	// ErrFatal indicates the storage layer is unreachable. The enclosing
	// task aborts and reports; the process itself does not exit.
	ErrFatal = errors.New("fatal storage error")
)
