// Package history is the durable SQLite store for prompt entries, their
// responses, and the key/value settings the orchestrator keeps per provider.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

// ErrNotFound is returned when a durable id does not exist.
var ErrNotFound = errors.New("history: record not found")

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists history in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates (or opens) the database at path and applies pending migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateEntry inserts an entry without its responses and returns its durable id.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry domain.PromptEntry) (int64, error) {
	providers, err := json.Marshal(nonNil(entry.Providers))
	if err != nil {
		return 0, err
	}
	models, err := json.Marshal(nonNil(entry.Models))
	if err != nil {
		return 0, err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO prompt_entries
		(uid, prompt, providers, models, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Prompt, string(providers), string(models), string(entry.Status), formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert entry: %w", err)
	}
	return res.LastInsertId()
}

// UpdateEntryStatus sets the entry's overall status.
func (s *SQLiteStore) UpdateEntryStatus(ctx context.Context, durableID int64, status domain.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "UPDATE prompt_entries SET status = ? WHERE id = ?", string(status), durableID)
	if err != nil {
		return fmt.Errorf("history: update entry: %w", err)
	}
	return expectRow(res)
}

// UpdateEntryTargets replaces the provider and model lists of an entry.
func (s *SQLiteStore) UpdateEntryTargets(ctx context.Context, durableID int64, providers, models []string) error {
	providersJSON, err := json.Marshal(nonNil(providers))
	if err != nil {
		return fmt.Errorf("history: encode providers: %w", err)
	}
	modelsJSON, err := json.Marshal(nonNil(models))
	if err != nil {
		return fmt.Errorf("history: encode models: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "UPDATE prompt_entries SET providers = ?, models = ? WHERE id = ?",
		string(providersJSON), string(modelsJSON), durableID)
	if err != nil {
		return fmt.Errorf("history: update entry targets: %w", err)
	}
	return expectRow(res)
}

// CreateResponse inserts a response under an existing entry.
func (s *SQLiteStore) CreateResponse(ctx context.Context, entryDurableID int64, resp domain.PromptResponse) (int64, error) {
	now := time.Now()
	created := resp.Timestamp
	if created.IsZero() {
		created = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO prompt_responses
		(uid, entry_id, provider_id, model_id, prompt, content, status, error, error_code, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, entryDurableID, resp.ProviderID, resp.ModelID, resp.Prompt, resp.Content,
		string(resp.Status), resp.Error, string(resp.ErrorCode), resp.Duration.Milliseconds(),
		formatTime(created), formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert response: %w", err)
	}
	return res.LastInsertId()
}

// UpdateResponse overwrites the mutable fields of a response.
func (s *SQLiteStore) UpdateResponse(ctx context.Context, durableID int64, resp domain.PromptResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE prompt_responses
		SET content = ?, status = ?, error = ?, error_code = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?`,
		resp.Content, string(resp.Status), resp.Error, string(resp.ErrorCode), resp.Duration.Milliseconds(),
		formatTime(time.Now()), durableID,
	)
	if err != nil {
		return fmt.Errorf("history: update response: %w", err)
	}
	return expectRow(res)
}

// DeleteEntry removes the entry and, through the foreign key cascade, its responses.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, durableID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM prompt_responses WHERE entry_id = ?", durableID); err != nil {
		return fmt.Errorf("history: delete responses: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM prompt_entries WHERE id = ?", durableID)
	if err != nil {
		return fmt.Errorf("history: delete entry: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEntries returns entries newest first, each with its responses in insertion order.
// Search matches the prompt or any response content.
func (s *SQLiteStore) ListEntries(ctx context.Context, query domain.HistoryQuery) ([]domain.StoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	builder := strings.Builder{}
	builder.WriteString("SELECT id, uid, prompt, providers, models, status, created_at FROM prompt_entries e")
	var args []interface{}
	if search := strings.TrimSpace(query.Search); search != "" {
		builder.WriteString(` WHERE e.prompt LIKE ? ESCAPE '\' OR EXISTS (
			SELECT 1 FROM prompt_responses r WHERE r.entry_id = e.id AND r.content LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(search) + "%"
		args = append(args, pattern, pattern)
	}
	builder.WriteString(" ORDER BY e.created_at DESC, e.id DESC")
	if query.Limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, query.Limit)
	}

	entries, err := s.scanEntries(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}
	if err := s.attachResponses(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SQLiteStore) scanEntries(ctx context.Context, query string, args ...interface{}) ([]domain.StoredEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.StoredEntry
	for rows.Next() {
		var (
			stored            domain.StoredEntry
			providers, models string
			status, createdAt string
		)
		if err := rows.Scan(&stored.DurableID, &stored.Entry.ID, &stored.Entry.Prompt, &providers, &models, &status, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(providers), &stored.Entry.Providers); err != nil {
			return nil, fmt.Errorf("history: decode providers of entry %d: %w", stored.DurableID, err)
		}
		if err := json.Unmarshal([]byte(models), &stored.Entry.Models); err != nil {
			return nil, fmt.Errorf("history: decode models of entry %d: %w", stored.DurableID, err)
		}
		stored.Entry.Status = domain.EntryStatus(status)
		stored.Entry.CreatedAt = parseTime(createdAt)
		entries = append(entries, stored)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) attachResponses(ctx context.Context, entries []domain.StoredEntry) error {
	index := make(map[int64]int, len(entries))
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries))
	for i, entry := range entries {
		index[entry.DurableID] = i
		placeholders = append(placeholders, "?")
		args = append(args, entry.DurableID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, uid, entry_id, provider_id, model_id, prompt, content,
		status, error, error_code, duration_ms, created_at
		FROM prompt_responses WHERE entry_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id ASC`, args...)
	if err != nil {
		return fmt.Errorf("history: list responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stored     domain.StoredResponse
			entryID    int64
			status     string
			errorCode  string
			durationMS int64
			createdAt  string
		)
		resp := &stored.Response
		if err := rows.Scan(&stored.DurableID, &resp.ID, &entryID, &resp.ProviderID, &resp.ModelID, &resp.Prompt,
			&resp.Content, &status, &resp.Error, &errorCode, &durationMS, &createdAt); err != nil {
			return err
		}
		resp.Status = domain.ResponseStatus(status)
		resp.ErrorCode = domain.ErrorCode(errorCode)
		resp.Duration = time.Duration(durationMS) * time.Millisecond
		resp.Timestamp = parseTime(createdAt)

		i, ok := index[entryID]
		if !ok {
			continue
		}
		resp.EntryID = entries[i].Entry.ID
		entries[i].Responses = append(entries[i].Responses, stored)
	}
	return rows.Err()
}

// GetSetting implements ports.SettingsStore.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("history: get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting implements ports.SettingsStore.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("history: set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting implements ports.SettingsStore. Deleting a missing key is not an error.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("history: delete setting %s: %w", key, err)
	}
	return nil
}

// Clear deletes all entries and responses. Settings are kept.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM prompt_entries"); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// PruneBefore deletes entries created before cutoff and reports how many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM prompt_entries WHERE created_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// ExportJSON writes every entry with its responses as one JSON object per line.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer) (int, error) {
	entries, err := s.ListEntries(ctx, domain.HistoryQuery{})
	if err != nil {
		return 0, err
	}
	encoder := json.NewEncoder(w)
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i].Entry
		for _, stored := range entries[i].Responses {
			resp := stored.Response
			entry.Responses = append(entry.Responses, &resp)
		}
		if err := encoder.Encode(entry); err != nil {
			return len(entries) - 1 - i, err
		}
	}
	return len(entries), nil
}

// Stats summarizes the store.
type Stats struct {
	Entries       int
	Responses     int
	ByStatus      map[domain.ResponseStatus]int
	Oldest        time.Time
	Newest        time.Time
	SizeBytes     int64
	SchemaVersion int
}

// Stats reports counts, the time span covered and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ByStatus: make(map[domain.ResponseStatus]int)}
	var oldest, newest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM prompt_entries",
	).Scan(&stats.Entries, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("history: stats: %w", err)
	}
	stats.Oldest = parseTime(oldest.String)
	stats.Newest = parseTime(newest.String)

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM prompt_responses GROUP BY status")
	if err != nil {
		return Stats{}, fmt.Errorf("history: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[domain.ResponseStatus(status)] = count
		stats.Responses += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	version, err := schemaVersion(s.db)
	if err != nil {
		return Stats{}, err
	}
	stats.SchemaVersion = version
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}
		}
	}
	return t
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return replacer.Replace(s)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var (
	_ ports.HistoryRepository = (*SQLiteStore)(nil)
	_ ports.SettingsStore     = (*SQLiteStore)(nil)
)
