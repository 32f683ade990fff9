package db

import (
	"context"
	"fmt"
)

// AuditStore records one row per chat interaction. Recording is best
// effort; callers log failures but never fail the request over them.
type AuditStore struct {
	db *DB
}

func NewAuditStore(database *DB) *AuditStore {
	return &AuditStore{db: database}
}

// Record inserts an interaction entry.
func (as *AuditStore) Record(ctx context.Context, requestID, clientID, question, sqlText string, rowCount int, status string) error {
	if requestID == "" {
		return fmt.Errorf("request_id is required")
	}

	query := `
		INSERT INTO chat_audit_log (request_id, client_id, question, sql_text, row_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := as.db.ExecContext(ctx, query, requestID, clientID, question, sqlText, rowCount, status); err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}
