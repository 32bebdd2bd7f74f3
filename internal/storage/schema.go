package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	return createDeliveriesTable(ctx, db)
}

func createDeliveriesTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		request_id TEXT,
		channel TEXT NOT NULL,
		recipient TEXT NOT NULL,
		trigger TEXT NOT NULL,
		response_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deliveries_status_created ON deliveries(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create deliveries table: %w", err)
	}

	return nil
}
