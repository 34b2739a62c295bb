// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
identity_crud.go - Identity Bridge & Discovery Queue Persistence

For any signature, at most one of {an active Identity Bridge, a
Discovery Queue entry} may exist at a time. CreateBridge enforces this
by deleting any queue entry for the signature in the same write-locked
call; BumpDiscoveryQueue refuses to queue a signature that already has
an active bridge.
*/
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/models"
)

// FindActiveBridge returns the active (non-revoked) Identity Bridge for
// signature, or nil if none exists.
func (db *DB) FindActiveBridge(ctx context.Context, signature string) (*models.IdentityBridge, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at
		 FROM identity_bridge WHERE log_signature = ? AND is_revoked = FALSE`, signature)
	return scanBridge(row)
}

// FindAnyBridge returns the bridge row for signature regardless of
// revocation state, or nil if none exists.
func (db *DB) FindAnyBridge(ctx context.Context, signature string) (*models.IdentityBridge, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at
		 FROM identity_bridge WHERE log_signature = ?`, signature)
	return scanBridge(row)
}

// FindBridgeByID returns a bridge row (active or revoked) by its ID.
func (db *DB) FindBridgeByID(ctx context.Context, id uuid.UUID) (*models.IdentityBridge, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at
		 FROM identity_bridge WHERE id = ?`, id)
	return scanBridge(row)
}

func scanBridge(row *sql.Row) (*models.IdentityBridge, error) {
	var b models.IdentityBridge
	err := row.Scan(&b.ID, &b.LogSignature, &b.ReferenceArtist, &b.ReferenceTitle, &b.WorkID, &b.Confidence, &b.IsRevoked, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity bridge: %w", err)
	}
	return &b, nil
}

// CreateBridge creates a new active Identity Bridge for signature and
// removes any Discovery Queue entry for the same signature, preserving
// the mutual-exclusivity invariant. Returns catalogerr.ErrBridgeExists
// if any bridge row (active or revoked) already exists for signature —
// the caller should use ReviveBridge for a revoked one.
func (db *DB) CreateBridge(ctx context.Context, signature, referenceArtist, referenceTitle string, workID uuid.UUID, confidence float64) (*models.IdentityBridge, error) {
	bridge := &models.IdentityBridge{
		ID:              uuid.New(),
		LogSignature:    signature,
		ReferenceArtist: referenceArtist,
		ReferenceTitle:  referenceTitle,
		WorkID:          workID,
		Confidence:      confidence,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	err := db.withWriteLock(func() error {
		existing, findErr := db.FindAnyBridge(ctx, signature)
		if findErr != nil {
			return findErr
		}
		if existing != nil {
			return fmt.Errorf("signature %q: %w", signature, catalogerr.ErrBridgeExists)
		}

		if _, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO identity_bridge (id, log_signature, reference_artist, reference_title, work_id, confidence, is_revoked, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)`,
			bridge.ID, bridge.LogSignature, bridge.ReferenceArtist, bridge.ReferenceTitle, bridge.WorkID, bridge.Confidence, bridge.CreatedAt, bridge.UpdatedAt,
		); execErr != nil {
			return fmt.Errorf("insert identity bridge: %w", execErr)
		}

		if _, execErr := db.conn.ExecContext(ctx,
			`DELETE FROM discovery_queue WHERE signature = ?`, signature,
		); execErr != nil {
			return fmt.Errorf("clear discovery queue entry: %w", execErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bridge, nil
}

// ReviveBridge flips a revoked bridge back to active and retargets it
// to workID/referenceArtist/referenceTitle. Only legal when the bridge
// is currently revoked; returns
// catalogerr.ErrBridgeConflict if it is already active.
func (db *DB) ReviveBridge(ctx context.Context, bridgeID uuid.UUID, workID uuid.UUID, referenceArtist, referenceTitle string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE identity_bridge
			 SET is_revoked = FALSE, work_id = ?, reference_artist = ?, reference_title = ?, updated_at = ?
			 WHERE id = ? AND is_revoked = TRUE`,
			workID, referenceArtist, referenceTitle, time.Now(), bridgeID)
		if err != nil {
			return fmt.Errorf("revive bridge: %w", err)
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("revive bridge rows affected: %w", raErr)
		}
		if n == 0 {
			existing, findErr := db.FindBridgeByID(ctx, bridgeID)
			if findErr != nil {
				return findErr
			}
			if existing == nil {
				return catalogerr.ErrNotFound
			}
			return fmt.Errorf("bridge %s already active: %w", bridgeID, catalogerr.ErrBridgeConflict)
		}
		return nil
	})
}

// RevokeBridge flips an active bridge to revoked.
func (db *DB) RevokeBridge(ctx context.Context, bridgeID uuid.UUID) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE identity_bridge SET is_revoked = TRUE, updated_at = ? WHERE id = ?`,
			time.Now(), bridgeID)
		if err != nil {
			return fmt.Errorf("revoke bridge: %w", err)
		}
		return requireRowsAffected(res, catalogerr.ErrNotFound)
	})
}

func requireRowsAffected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// GetDiscoveryQueueEntry returns the Discovery Queue entry for
// signature, or nil if none exists.
func (db *DB) GetDiscoveryQueueEntry(ctx context.Context, signature string) (*models.DiscoveryQueueEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT signature, raw_artist, raw_title, count, suggested_work_id, created_at, updated_at
		 FROM discovery_queue WHERE signature = ?`, signature)
	return scanDiscoveryEntry(row)
}

func scanDiscoveryEntry(row *sql.Row) (*models.DiscoveryQueueEntry, error) {
	var e models.DiscoveryQueueEntry
	var suggestedWorkID sql.NullString
	err := row.Scan(&e.Signature, &e.RawArtist, &e.RawTitle, &e.Count, &suggestedWorkID, &e.FirstSeenAt, &e.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan discovery queue entry: %w", err)
	}
	if suggestedWorkID.Valid {
		id, parseErr := uuid.Parse(suggestedWorkID.String)
		if parseErr != nil {
			return nil, fmt.Errorf("scan discovery queue entry: invalid suggested_work_id: %w", parseErr)
		}
		e.SuggestedWorkID = &id
	}
	return &e, nil
}

// BumpDiscoveryQueue raises the counter for signature by delta,
// creating the entry on first sight. Refuses to queue a signature that
// already has an active Identity Bridge, preserving the
// mutual-exclusivity invariant.
func (db *DB) BumpDiscoveryQueue(ctx context.Context, signature, rawArtist, rawTitle string, suggestedWorkID *uuid.UUID, delta int64) (*models.DiscoveryQueueEntry, error) {
	if delta <= 0 {
		delta = 1
	}
	err := db.withWriteLock(func() error {
		active, findErr := db.FindActiveBridge(ctx, signature)
		if findErr != nil {
			return findErr
		}
		if active != nil {
			return fmt.Errorf("signature %q already has an active bridge: %w", signature, catalogerr.ErrBridgeConflict)
		}

		now := time.Now()
		_, execErr := db.conn.ExecContext(ctx,
			`INSERT INTO discovery_queue (signature, raw_artist, raw_title, count, suggested_work_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (signature) DO UPDATE SET
				count = discovery_queue.count + excluded.count,
				suggested_work_id = COALESCE(excluded.suggested_work_id, discovery_queue.suggested_work_id),
				updated_at = excluded.updated_at`,
			signature, rawArtist, rawTitle, delta, suggestedWorkID, now, now)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("bump discovery queue: %w", err)
	}
	return db.GetDiscoveryQueueEntry(ctx, signature)
}

// DiscoveryQueueSeed is one rebuilt Discovery Queue row: an unmatched
// signature, its representative raw values, how many BroadcastLog rows
// currently share it, and the Matcher's suggestion if it produced one.
type DiscoveryQueueSeed struct {
	Signature       string
	RawArtist       string
	RawTitle        string
	Count           int64
	SuggestedWorkID *uuid.UUID
}

// RebuildDiscoveryQueue replaces the whole Discovery Queue with seeds
// in one transaction, then drops any seed whose signature an active
// Identity Bridge already owns so the mutual-exclusivity invariant
// holds even if a bridge was created after the seeds were computed.
// Returns the queue size after the rebuild.
func (db *DB) RebuildDiscoveryQueue(ctx context.Context, seeds []DiscoveryQueueSeed) (int, error) {
	var size int
	err := db.withWriteLock(func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rebuild: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM discovery_queue`); err != nil {
			return fmt.Errorf("clear discovery queue: %w", err)
		}

		now := time.Now()
		for _, seed := range seeds {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO discovery_queue (signature, raw_artist, raw_title, count, suggested_work_id, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				seed.Signature, seed.RawArtist, seed.RawTitle, seed.Count, seed.SuggestedWorkID, now, now); err != nil {
				return fmt.Errorf("insert queue seed %q: %w", seed.Signature, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM discovery_queue
			 WHERE signature IN (SELECT log_signature FROM identity_bridge WHERE is_revoked = FALSE)`); err != nil {
			return fmt.Errorf("prune bridged signatures: %w", err)
		}

		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM discovery_queue`).Scan(&size); err != nil {
			return fmt.Errorf("count rebuilt queue: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild discovery queue: %w", err)
	}
	return size, nil
}

// DeleteDiscoveryQueueEntry removes the Discovery Queue entry for
// signature. LinkAction and PromoteAction delete the entry inside their
// own transaction rather than through this method.
func (db *DB) DeleteDiscoveryQueueEntry(ctx context.Context, signature string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `DELETE FROM discovery_queue WHERE signature = ?`, signature)
		if err != nil {
			return fmt.Errorf("delete discovery queue entry: %w", err)
		}
		return nil
	})
}

// ListDiscoveryQueue returns queued signatures ordered by play count
// descending, for the operator review surface.
func (db *DB) ListDiscoveryQueue(ctx context.Context, limit int) ([]models.DiscoveryQueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT signature, raw_artist, raw_title, count, suggested_work_id, created_at, updated_at
		 FROM discovery_queue ORDER BY count DESC, updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list discovery queue: %w", err)
	}
	defer rows.Close()

	var out []models.DiscoveryQueueEntry
	for rows.Next() {
		var e models.DiscoveryQueueEntry
		var suggestedWorkID sql.NullString
		if err := rows.Scan(&e.Signature, &e.RawArtist, &e.RawTitle, &e.Count, &suggestedWorkID, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan discovery queue row: %w", err)
		}
		if suggestedWorkID.Valid {
			id, parseErr := uuid.Parse(suggestedWorkID.String)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid suggested_work_id: %w", parseErr)
			}
			e.SuggestedWorkID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
