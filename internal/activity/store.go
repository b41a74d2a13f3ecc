package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matthewbaird/civicpulse/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search performs substring search across activity summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)

	Close() error
}

// SQLiteStore implements Store on a SQLite database through the pure-Go
// modernc driver. Timestamps are stored as UTC unix nanoseconds so ordering
// and range filters stay in SQL.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and ensures the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening activity database: %w", err)
	}
	// SQLite allows one writer; serialising connections avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the activity_entries table and its indexes.
func (s *SQLiteStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS activity_entries (
			seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id            TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			occurred_at         INTEGER NOT NULL,
			indexed_entity_type TEXT NOT NULL,
			indexed_entity_id   TEXT NOT NULL,
			entity_role         TEXT NOT NULL,
			source_refs         TEXT NOT NULL DEFAULT '[]',
			summary             TEXT NOT NULL,
			category            TEXT NOT NULL,
			weight              TEXT NOT NULL,
			actor               TEXT NOT NULL DEFAULT '',
			payload             TEXT,
			UNIQUE (indexed_entity_type, indexed_entity_id, event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_activity_entity_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at DESC);

		CREATE INDEX IF NOT EXISTS idx_activity_entity_category_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, category, occurred_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating activity table: %w", err)
	}
	return nil
}

// WriteEntries inserts activity entries in a single statement.
func (s *SQLiteStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO activity_entries (
		event_id, event_type, occurred_at, indexed_entity_type, indexed_entity_id,
		entity_role, source_refs, summary, category, weight, actor, payload
	) VALUES `)

	args := make([]interface{}, 0, len(entries)*12)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload interface{}
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		args = append(args,
			e.EventID, e.EventType, e.OccurredAt.UTC().UnixNano(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Weight, e.Actor, payload,
		)
	}

	b.WriteString(" ON CONFLICT DO NOTHING")
	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

const selectColumns = `event_id, event_type, occurred_at, indexed_entity_type, indexed_entity_id,
			entity_role, source_refs, summary, category, weight, actor, payload`

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLiteStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := normalizeLimit(opts.Limit, 100, 500)

	conditions := []string{"indexed_entity_type = ?", "indexed_entity_id = ?"}
	args := []interface{}{entityType, entityID}

	if opts.Since != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, opts.Since.UTC().UnixNano())
	}
	if opts.Until != nil {
		conditions = append(conditions, "occurred_at <= ?")
		args = append(args, opts.Until.UTC().UnixNano())
	}
	if len(opts.Categories) > 0 {
		conditions = append(conditions, "category IN ("+placeholders(len(opts.Categories))+")")
		for _, cat := range opts.Categories {
			args = append(args, cat)
		}
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		weights := weightsAtLeast(opts.MinWeight)
		conditions = append(conditions, "weight IN ("+placeholders(len(weights))+")")
		for _, w := range weights {
			args = append(args, w)
		}
	}
	if opts.Cursor != "" {
		// Cursor is the occurred_at timestamp of the last result.
		if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			conditions = append(conditions, "occurred_at < ?")
			args = append(args, cursorTime.UTC().UnixNano())
		}
	}

	where := strings.Join(conditions, " AND ")
	query := fmt.Sprintf(`SELECT %s FROM activity_entries WHERE %s ORDER BY occurred_at DESC, seq ASC LIMIT ?`, selectColumns, where)

	entries, err := s.scan(ctx, query, append(args, limit+1)...)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_entries WHERE "+where, args...).Scan(&totalCount); err != nil {
		return nil, "", 0, fmt.Errorf("counting activity entries: %w", err)
	}

	return entries, nextCursor, totalCount, nil
}

// Search performs case-insensitive substring search across activity summaries.
func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	limit := normalizeLimit(opts.Limit, 20, 500)

	conditions := []string{"instr(lower(summary), lower(?)) > 0"}
	args := []interface{}{query}

	if opts.EntityType != "" {
		conditions = append(conditions, "indexed_entity_type = ?")
		args = append(args, opts.EntityType)
	}
	if opts.Since != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, opts.Since.UTC().UnixNano())
	}
	if len(opts.Categories) > 0 {
		conditions = append(conditions, "category IN ("+placeholders(len(opts.Categories))+")")
		for _, cat := range opts.Categories {
			args = append(args, cat)
		}
	}

	where := strings.Join(conditions, " AND ")
	sqlQuery := fmt.Sprintf(`SELECT %s FROM activity_entries WHERE %s ORDER BY occurred_at DESC, seq ASC LIMIT ?`, selectColumns, where)

	entries, err := s.scan(ctx, sqlQuery, append(args, limit)...)
	if err != nil {
		return nil, 0, err
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_entries WHERE "+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return entries, totalCount, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) scan(ctx context.Context, query string, args ...interface{}) ([]types.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var e types.ActivityEntry
		var occurred int64
		var refsJSON string
		var payload sql.NullString
		err := rows.Scan(
			&e.EventID, &e.EventType, &occurred, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Weight, &e.Actor, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = time.Unix(0, occurred).UTC()
		if refsJSON != "" {
			_ = json.Unmarshal([]byte(refsJSON), &e.SourceRefs)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading activity entries: %w", err)
	}
	return entries, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
