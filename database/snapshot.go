package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/janneh/batteryctl-go/types"
)

// ReplaceSnapshot swaps the stored snapshot for the new one in a single
// transaction. There is never more than one snapshot row, a run either
// replaces it completely or leaves the previous one untouched.
func (d *Database) ReplaceSnapshot(ctx context.Context, snapshot types.SnapshotPayload) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing previous snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot (timestamp, payload)
		VALUES (?, ?)`,
		snapshot.Timestamp.UTC().Format(time.RFC3339),
		string(payload))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("saving snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}

	return nil
}

// GetLatestSnapshot returns the stored snapshot, or nil when no run has
// completed yet.
func (d *Database) GetLatestSnapshot(ctx context.Context) (*types.SnapshotPayload, error) {
	var payload string
	err := d.read.QueryRowContext(ctx, `
		SELECT payload FROM snapshot ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}

	var snapshot types.SnapshotPayload
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	return &snapshot, nil
}
