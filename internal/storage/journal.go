package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HashRecipient returns the stored form of a sender id: a truncated
// SHA-256 over channel and id. Ids are never interpreted.
func HashRecipient(channel, id string) string {
	sum := sha256.Sum256([]byte(channel + ":" + id))
	return hex.EncodeToString(sum[:8])
}

// RecordDelivery journals one send attempt.
func (db *DB) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO deliveries (id, request_id, channel, recipient, trigger, response_id, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		d.ID,
		nullString(d.RequestID),
		d.Channel,
		HashRecipient(d.Channel, d.Recipient),
		d.Trigger,
		d.ResponseID,
		d.Status,
		nullString(d.Error),
		d.Duration.Milliseconds(),
		d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// CountDeliveries counts journaled deliveries with the given status.
// An empty status counts every row.
func (db *DB) CountDeliveries(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM deliveries`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

// RecentFailures returns the newest failed deliveries, newest first.
func (db *DB) RecentFailures(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, channel, recipient, trigger, response_id, status, error, duration_ms, created_at
		FROM deliveries
		WHERE status = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Delivery
	for rows.Next() {
		var (
			d          Delivery
			requestID  sql.NullString
			errText    sql.NullString
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&d.ID, &requestID, &d.Channel, &d.Recipient, &d.Trigger, &d.ResponseID, &d.Status, &errText, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.RequestID = requestID.String
		d.Error = errText.String
		d.Duration = time.Duration(durationMs) * time.Millisecond
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes rows older than retention and returns how many went.
func (db *DB) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old deliveries: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
