// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
verification_actions.go - Atomic Verification Transactions

Link, Promote, and Undo each mutate the Identity Bridge, the Discovery
Queue, BroadcastLog rows, and the VerificationAudit trail together, and
Dismiss mutates the Discovery Queue and the audit trail together;
observers must see all of an action's writes or none of them.
Unlike the rest of this package (which serializes independent
statements under db.writeMu and retries the single failing one), these
four actions open one real *sql.Tx per call.
*/
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/normalizer"
)

// LinkRequest is the input to LinkAction.
type LinkRequest struct {
	Signature   string
	RawArtist   string
	RawTitle    string
	WorkID      uuid.UUID
	Confidence  float64
	PerformedBy *string
}

// PromoteRequest is the input to PromoteAction: the same bridge/queue/log
// bookkeeping as Link, plus the recording a brand-new or newly-verified
// Work resolves to.
type PromoteRequest struct {
	LinkRequest
	RecordingID uuid.UUID
}

// withVerificationTx runs fn inside a real transaction, serialized
// against every other CatalogStore writer via db.writeMu (DuckDB's
// single-writer-connection limit applies across transactions just as it
// does across individual statements).
func (db *DB) withVerificationTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin verification transaction: %w", err)
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("verification transaction rollback failed")
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit verification transaction: %w", err)
		}
		return nil
	})
}

// LinkAction resolves a queued signature to an existing Work: it
// validates the signature, collects every currently-unmatched log
// whose recomputed signature equals S, upserts (creates or revives) the
// Identity Bridge, updates those logs, deletes the Queue entry, and
// appends one audit row - all inside one transaction.
func (db *DB) LinkAction(ctx context.Context, req LinkRequest) (*models.VerificationAudit, error) {
	if normalizer.GenerateSignature(req.RawArtist, req.RawTitle) != req.Signature {
		return nil, fmt.Errorf("link: raw artist/title no longer hash to %q: %w", req.Signature, catalogerr.ErrSignatureMismatch)
	}

	var audit *models.VerificationAudit
	err := db.withVerificationTx(ctx, func(tx *sql.Tx) error {
		bridgeID, conflictErr := upsertBridgeTx(ctx, tx, req.Signature, req.RawArtist, req.RawTitle, req.WorkID, req.Confidence)
		if conflictErr != nil {
			return conflictErr
		}

		logIDs, err := detachableLogIDsTx(ctx, tx, req.Signature)
		if err != nil {
			return err
		}
		if err := updateLogsMatchedTx(ctx, tx, logIDs, req.WorkID, models.ReasonIdentityBridge.String()); err != nil {
			return err
		}
		if err := deleteQueueEntryTx(ctx, tx, req.Signature); err != nil {
			return err
		}

		a := &models.VerificationAudit{
			ID:          uuid.New(),
			ActionType:  models.ActionLink,
			Signature:   req.Signature,
			RawArtist:   req.RawArtist,
			RawTitle:    req.RawTitle,
			WorkID:      &req.WorkID,
			LogIDs:      logIDs,
			BridgeID:    &bridgeID,
			PerformedBy: req.PerformedBy,
			CreatedAt:   time.Now(),
		}
		if err := insertAuditTx(ctx, tx, a); err != nil {
			return err
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// PromoteAction is Link plus marking the (caller-resolved) Recording
// operator-verified in the same transaction. Hierarchy resolution itself
// happens before this call via the idempotent CatalogStore upserts
// (UpsertArtist/UpsertWork/UpsertRecording/LinkWorkArtists) - those are
// safe to retry and need no rollback of their own; only the
// bridge/logs/queue/audit group carries the atomicity requirement.
func (db *DB) PromoteAction(ctx context.Context, req PromoteRequest) (*models.VerificationAudit, error) {
	if normalizer.GenerateSignature(req.RawArtist, req.RawTitle) != req.Signature {
		return nil, fmt.Errorf("promote: raw artist/title no longer hash to %q: %w", req.Signature, catalogerr.ErrSignatureMismatch)
	}

	var audit *models.VerificationAudit
	err := db.withVerificationTx(ctx, func(tx *sql.Tx) error {
		bridgeID, conflictErr := upsertBridgeTx(ctx, tx, req.Signature, req.RawArtist, req.RawTitle, req.WorkID, req.Confidence)
		if conflictErr != nil {
			return conflictErr
		}

		logIDs, err := detachableLogIDsTx(ctx, tx, req.Signature)
		if err != nil {
			return err
		}
		if err := updateLogsMatchedTx(ctx, tx, logIDs, req.WorkID, models.ReasonIdentityBridge.String()); err != nil {
			return err
		}
		if err := deleteQueueEntryTx(ctx, tx, req.Signature); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE recordings SET is_verified = TRUE, updated_at = ? WHERE id = ?`, time.Now(), req.RecordingID); err != nil {
			return fmt.Errorf("promote: mark recording verified: %w", err)
		}

		a := &models.VerificationAudit{
			ID:          uuid.New(),
			ActionType:  models.ActionPromote,
			Signature:   req.Signature,
			RawArtist:   req.RawArtist,
			RawTitle:    req.RawTitle,
			WorkID:      &req.WorkID,
			LogIDs:      logIDs,
			BridgeID:    &bridgeID,
			PerformedBy: req.PerformedBy,
			CreatedAt:   time.Now(),
		}
		if err := insertAuditTx(ctx, tx, a); err != nil {
			return err
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// DismissAction deletes the Queue entry for signature and records the
// decision; it touches no Bridge and no BroadcastLog row.
func (db *DB) DismissAction(ctx context.Context, signature, rawArtist, rawTitle string, performedBy *string) (*models.VerificationAudit, error) {
	var audit *models.VerificationAudit
	err := db.withVerificationTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM discovery_queue WHERE signature = ?`, signature)
		if err != nil {
			return fmt.Errorf("dismiss: delete queue entry: %w", err)
		}
		if err := requireRowsAffected(res, catalogerr.ErrNotFound); err != nil {
			return err
		}

		a := &models.VerificationAudit{
			ID:          uuid.New(),
			ActionType:  models.ActionDismiss,
			Signature:   signature,
			RawArtist:   rawArtist,
			RawTitle:    rawTitle,
			PerformedBy: performedBy,
			CreatedAt:   time.Now(),
		}
		if err := insertAuditTx(ctx, tx, a); err != nil {
			return err
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// UndoAction reverses audit A. Idempotent: calling it
// again after A.is_undone is already true is a no-op that returns A
// unchanged.
func (db *DB) UndoAction(ctx context.Context, auditID uuid.UUID, performedBy *string) (*models.VerificationAudit, error) {
	var result *models.VerificationAudit
	err := db.withVerificationTx(ctx, func(tx *sql.Tx) error {
		original, err := findAuditTx(ctx, tx, auditID)
		if err != nil {
			return err
		}
		if original == nil {
			return catalogerr.ErrNotFound
		}
		if original.IsUndone {
			result = original
			return errUndoNoop
		}

		if original.BridgeID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE identity_bridge SET is_revoked = TRUE, updated_at = ? WHERE id = ?`, time.Now(), *original.BridgeID); err != nil {
				return fmt.Errorf("undo: revoke bridge: %w", err)
			}
		}

		detached, err := detachLogsTx(ctx, tx, original.LogIDs, original.Signature)
		if err != nil {
			return err
		}

		if err := upsertQueueCountTx(ctx, tx, original.Signature, original.RawArtist, original.RawTitle, int64(len(detached))); err != nil {
			return err
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx, `UPDATE verification_audit SET is_undone = TRUE, undone_at = ? WHERE id = ?`, now, auditID); err != nil {
			return fmt.Errorf("undo: mark original audit undone: %w", err)
		}

		undo := &models.VerificationAudit{
			ID:          uuid.New(),
			ActionType:  models.ActionUndo,
			Signature:   original.Signature,
			RawArtist:   original.RawArtist,
			RawTitle:    original.RawTitle,
			LogIDs:      detached,
			BridgeID:    original.BridgeID,
			PerformedBy: performedBy,
			CreatedAt:   now,
		}
		if err := insertAuditTx(ctx, tx, undo); err != nil {
			return err
		}
		result = undo
		return nil
	})
	if err != nil && !errors.Is(err, errUndoNoop) {
		return nil, err
	}
	return result, nil
}

// errUndoNoop signals withVerificationTx's caller that UndoAction found
// an already-undone audit: the transaction commits nothing (fn returned
// an error so withWriteLock's fn rolls back), but the outer call still
// succeeds with the unchanged original row.
var errUndoNoop = errors.New("undo: already undone")

// upsertBridgeTx creates or revives the Identity Bridge for signature,
// returning its ID. Returns catalogerr.ErrBridgeConflict if an active
// bridge already targets a different Work than workID.
func upsertBridgeTx(ctx context.Context, tx *sql.Tx, signature, rawArtist, rawTitle string, workID uuid.UUID, confidence float64) (uuid.UUID, error) {
	existing, err := findAnyBridgeTx(ctx, tx, signature)
	if err != nil {
		return uuid.Nil, err
	}

	if existing != nil && !existing.IsRevoked {
		if existing.WorkID != workID {
			return uuid.Nil, fmt.Errorf("signature %q already bridged to a different work: %w", signature, catalogerr.ErrBridgeConflict)
		}
		return existing.ID, nil
	}

	if existing != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE identity_bridge SET is_revoked = FALSE, work_id = ?, reference_artist = ?, reference_title = ?, confidence = ?, updated_at = ? WHERE id = ?`,
			workID, rawArtist, rawTitle, confidence, time.Now(), existing.ID); err != nil {
			return uuid.Nil, fmt.Errorf("revive bridge: %w", err)
		}
		return existing.ID, nil
	}

	id := uuid.New()
	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO identity_bridge (id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)`,
		id, signature, rawArtist, rawTitle, workID, confidence, now, now); err != nil {
		return uuid.Nil, fmt.Errorf("create bridge: %w", err)
	}
	return id, nil
}

func findAnyBridgeTx(ctx context.Context, tx *sql.Tx, signature string) (*models.IdentityBridge, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at
		 FROM identity_bridge WHERE log_signature = ?`, signature)
	return scanBridge(row)
}

// detachableLogIDsTx returns the IDs of every unmatched BroadcastLog
// whose recomputed signature equals signature.
func detachableLogIDsTx(ctx context.Context, tx *sql.Tx, signature string) ([]uuid.UUID, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, raw_artist, raw_title FROM broadcast_logs WHERE work_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("scan unmatched logs: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		var rawArtist, rawTitle string
		if err := rows.Scan(&id, &rawArtist, &rawTitle); err != nil {
			return nil, fmt.Errorf("scan unmatched log row: %w", err)
		}
		if normalizer.GenerateSignature(rawArtist, rawTitle) == signature {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

// detachLogsTx resets every log in logIDs to unmatched, then also
// detaches any still-bridge-matched log whose recomputed signature
// equals signature - logs matched after the original action ran.
// Returns the deduplicated union of detached IDs.
func detachLogsTx(ctx context.Context, tx *sql.Tx, logIDs []uuid.UUID, signature string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(logIDs))
	union := make([]uuid.UUID, 0, len(logIDs))
	for _, id := range logIDs {
		seen[id] = struct{}{}
		union = append(union, id)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, raw_artist, raw_title FROM broadcast_logs WHERE work_id IS NOT NULL AND match_reason LIKE 'Identity Bridge%'`)
	if err != nil {
		return nil, fmt.Errorf("scan bridge-matched logs: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		var rawArtist, rawTitle string
		if err := rows.Scan(&id, &rawArtist, &rawTitle); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan bridge-matched log row: %w", err)
		}
		if normalizer.GenerateSignature(rawArtist, rawTitle) != signature {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		union = append(union, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := updateLogsMatchedTx(ctx, tx, union, uuid.Nil, ""); err != nil {
		return nil, err
	}
	return union, nil
}

// updateLogsMatchedTx sets work_id/match_reason on every log in logIDs.
// Passing workID == uuid.Nil and an empty reason clears both columns
// (Undo's detach path); otherwise it assigns them (Link/Promote's
// resolve path).
func updateLogsMatchedTx(ctx context.Context, tx *sql.Tx, logIDs []uuid.UUID, workID uuid.UUID, reason string) error {
	if len(logIDs) == 0 {
		return nil
	}

	var workArg interface{}
	var reasonArg interface{}
	if workID != uuid.Nil {
		workArg = workID
		reasonArg = reason
	}

	for _, id := range logIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE broadcast_logs SET work_id = ?, match_reason = ? WHERE id = ?`, workArg, reasonArg, id); err != nil {
			return fmt.Errorf("update broadcast log %s: %w", id, err)
		}
	}
	return nil
}

func deleteQueueEntryTx(ctx context.Context, tx *sql.Tx, signature string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM discovery_queue WHERE signature = ?`, signature); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

// upsertQueueCountTx recreates the Queue entry for signature with an
// exact count (Undo's "count = number of detached logs", not a relative
// bump).
func upsertQueueCountTx(ctx context.Context, tx *sql.Tx, signature, rawArtist, rawTitle string, count int64) error {
	if count <= 0 {
		return nil
	}
	now := time.Now()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO discovery_queue (signature, raw_artist, raw_title, count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (signature) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		signature, rawArtist, rawTitle, count, now, now)
	if err != nil {
		return fmt.Errorf("recreate queue entry: %w", err)
	}
	return nil
}

func insertAuditTx(ctx context.Context, tx *sql.Tx, a *models.VerificationAudit) error {
	logIDs, err := json.Marshal(a.LogIDs)
	if err != nil {
		return fmt.Errorf("marshal log_ids: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO verification_audit
			(id, action_type, signature, raw_artist, raw_title, work_id, log_ids, bridge_id, is_undone, performed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.ActionType), a.Signature, a.RawArtist, a.RawTitle,
		a.WorkID, string(logIDs), a.BridgeID, a.IsUndone, a.PerformedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func findAuditTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.VerificationAudit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, action_type, signature, raw_artist, raw_title, work_id, log_ids, bridge_id, is_undone, undone_at, performed_by, created_at
		 FROM verification_audit WHERE id = ?`, id)
	return scanAudit(row)
}
