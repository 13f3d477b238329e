package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresSink persists audit entries for durable retention. The table is
// append-only; there is no update or delete path.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink constructs a PostgreSQL-backed audit sink.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Append inserts one entry. Metadata is stored as JSONB; it has already been
// sanitized by the Recorder.
func (s *PostgresSink) Append(ctx context.Context, entry Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	query := `
		INSERT INTO audit_entries (id, created_at, action, actor_id, success, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp,
		string(entry.Action),
		entry.ActorID,
		entry.Success,
		metadata,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListRecent returns the most recent limit entries, newest first. Consumed by
// operator tooling, not by the disclosure pipeline.
func (s *PostgresSink) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, created_at, action, actor_id, success, metadata
		FROM audit_entries
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var metadata []byte
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &action, &entry.ActorID, &entry.Success, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
