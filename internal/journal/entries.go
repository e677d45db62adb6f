package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 50

// timeLayout keeps fixed-width UTC timestamps so text comparison orders them.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one journaled event.
type Entry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Phase      string    `json:"phase,omitempty"`
	Event      string    `json:"event"`
	BatchIndex int       `json:"batch_index,omitempty"`
	Message    string    `json:"message,omitempty"`
	Payload    string    `json:"payload,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Phase string
	Event string
	Since time.Time
	Limit int
}

// Append stores entry and returns it with its assigned ID. A zero RecordedAt
// is replaced with the current time.
func (s *Store) Append(ctx context.Context, entry Entry) (Entry, error) {
	if s == nil {
		return entry, errors.New("journal store is nil")
	}
	if strings.TrimSpace(entry.Event) == "" {
		return entry, errors.New("journal entry requires an event name")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	entry.RecordedAt = entry.RecordedAt.UTC()

	res, err := s.execWithRetry(ctx,
		`INSERT INTO journal_entries (recorded_at, phase, event, batch_index, message, payload_json)
         VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RecordedAt.Format(timeLayout),
		entry.Phase,
		entry.Event,
		entry.BatchIndex,
		entry.Message,
		nullableString(entry.Payload),
	)
	if err != nil {
		return entry, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// List returns the newest entries matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	ctx = ensureContext(ctx)

	var (
		clauses []string
		args    []any
	)
	if filter.Phase != "" {
		clauses = append(clauses, "phase = ?")
		args = append(args, filter.Phase)
	}
	if filter.Event != "" {
		clauses = append(clauses, "event = ?")
		args = append(args, filter.Event)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, recorded_at, phase, event, batch_index, message, payload_json FROM journal_entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes entries recorded before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM journal_entries WHERE recorded_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM journal_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return count, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry    Entry
		recorded string
		payload  sql.NullString
	)
	if err := rows.Scan(&entry.ID, &recorded, &entry.Phase, &entry.Event, &entry.BatchIndex, &entry.Message, &payload); err != nil {
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	ts, err := time.ParseInLocation(timeLayout, recorded, time.UTC)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
	}
	entry.RecordedAt = ts
	if payload.Valid {
		entry.Payload = payload.String
	}
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
