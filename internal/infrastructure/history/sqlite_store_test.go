package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/multiprompt/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedEntry(t *testing.T, store *SQLiteStore, id, prompt string, createdAt time.Time, contents ...string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	entryID, err := store.CreateEntry(ctx, domain.PromptEntry{
		ID:        id,
		Prompt:    prompt,
		Providers: []string{"offline"},
		Models:    []string{"echo"},
		CreatedAt: createdAt,
		Status:    domain.EntryPending,
	})
	if err != nil {
		t.Fatalf("CreateEntry() error: %v", err)
	}
	var responseIDs []int64
	for i, content := range contents {
		respID, err := store.CreateResponse(ctx, entryID, domain.PromptResponse{
			ID:         id + "-r" + string(rune('0'+i)),
			EntryID:    id,
			ProviderID: "offline",
			ModelID:    "echo",
			Content:    content,
			Status:     domain.ResponseSuccess,
			Timestamp:  createdAt,
			Prompt:     prompt,
		})
		if err != nil {
			t.Fatalf("CreateResponse() error: %v", err)
		}
		responseIDs = append(responseIDs, respID)
	}
	return entryID, responseIDs
}

func TestSQLiteStore_CreateUpdateList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	entryID, responseIDs := seedEntry(t, store, "e1", "first prompt", base, "", "")
	seedEntry(t, store, "e2", "second prompt", base.Add(time.Minute), "done")

	update := domain.PromptResponse{
		Content:   "partial answer",
		Status:    domain.ResponseCancelled,
		Duration:  1500 * time.Millisecond,
		Error:     "cancelled by user",
		ErrorCode: domain.ErrCodeUnknown,
	}
	if err := store.UpdateResponse(ctx, responseIDs[1], update); err != nil {
		t.Fatalf("UpdateResponse() error: %v", err)
	}
	if err := store.UpdateEntryStatus(ctx, entryID, domain.EntryCompleted); err != nil {
		t.Fatalf("UpdateEntryStatus() error: %v", err)
	}

	entries, err := store.ListEntries(ctx, domain.HistoryQuery{})
	if err != nil {
		t.Fatalf("ListEntries() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Entry.ID != "e2" || entries[1].Entry.ID != "e1" {
		t.Errorf("order = %s, %s; want newest first", entries[0].Entry.ID, entries[1].Entry.ID)
	}

	first := entries[1]
	if first.DurableID != entryID || first.Entry.Status != domain.EntryCompleted {
		t.Errorf("entry = %+v", first)
	}
	if !first.Entry.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", first.Entry.CreatedAt, base)
	}
	if diff := cmp.Diff([]string{"offline"}, first.Entry.Providers); diff != "" {
		t.Errorf("providers mismatch:\n%s", diff)
	}

	var gotIDs []int64
	for _, resp := range first.Responses {
		gotIDs = append(gotIDs, resp.DurableID)
	}
	if diff := cmp.Diff(responseIDs, gotIDs); diff != "" {
		t.Errorf("response order mismatch (-want +got):\n%s", diff)
	}

	updated := first.Responses[1].Response
	if updated.Content != "partial answer" || updated.Status != domain.ResponseCancelled ||
		updated.Duration != 1500*time.Millisecond || updated.EntryID != "e1" {
		t.Errorf("updated response = %+v", updated)
	}
}

func TestSQLiteStore_ListLimitAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seedEntry(t, store, "a", "how do goroutines work", base, "they are green threads")
	seedEntry(t, store, "b", "capital of france", base.Add(time.Second), "Paris")
	seedEntry(t, store, "c", "100% sure?", base.Add(2*time.Second), "yes")

	tests := []struct {
		name  string
		query domain.HistoryQuery
		want  []string
	}{
		{"limit", domain.HistoryQuery{Limit: 2}, []string{"c", "b"}},
		{"prompt match", domain.HistoryQuery{Search: "goroutines"}, []string{"a"}},
		{"response match", domain.HistoryQuery{Search: "paris"}, []string{"b"}},
		{"literal percent", domain.HistoryQuery{Search: "100%"}, []string{"c"}},
		{"no match", domain.HistoryQuery{Search: "kubernetes"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.ListEntries(ctx, tt.query)
			if err != nil {
				t.Fatalf("ListEntries() error: %v", err)
			}
			var got []string
			for _, entry := range entries {
				got = append(got, entry.Entry.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteStore_DeleteEntryCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entryID, responseIDs := seedEntry(t, store, "gone", "bye", time.Now(), "one", "two")
	seedEntry(t, store, "kept", "hi", time.Now(), "three")

	if err := store.DeleteEntry(ctx, entryID); err != nil {
		t.Fatalf("DeleteEntry() error: %v", err)
	}
	if err := store.DeleteEntry(ctx, entryID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteEntry() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateResponse(ctx, responseIDs[0], domain.PromptResponse{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateResponse() on deleted row error = %v, want ErrNotFound", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Entries != 1 || stats.Responses != 1 {
		t.Errorf("stats = %+v, want 1 entry and 1 response", stats)
	}
}

func TestSQLiteStore_Settings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetSetting(ctx, "provider_config:openai"); ok || err != nil {
		t.Fatalf("GetSetting(missing) = %v, %v", ok, err)
	}
	if err := store.SetSetting(ctx, "provider_config:openai", `{"text":{"temperature":0.2}}`); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSetting(ctx, "provider_config:openai", `{"text":{"temperature":0.9}}`); err != nil {
		t.Fatal(err)
	}
	value, ok, err := store.GetSetting(ctx, "provider_config:openai")
	if err != nil || !ok || !strings.Contains(value, "0.9") {
		t.Errorf("GetSetting() = %q, %v, %v", value, ok, err)
	}
	if err := store.DeleteSetting(ctx, "provider_config:openai"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.GetSetting(ctx, "provider_config:openai"); ok {
		t.Error("setting should be gone after delete")
	}
}

func TestSQLiteStore_PruneClearExport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedEntry(t, store, "old", "old prompt", now.AddDate(0, 0, -40), "old answer")
	seedEntry(t, store, "new", "new prompt", now, "new answer")

	removed, err := store.PruneBefore(ctx, now.AddDate(0, 0, -30))
	if err != nil || removed != 1 {
		t.Fatalf("PruneBefore() = %d, %v; want 1", removed, err)
	}

	var buf bytes.Buffer
	n, err := store.ExportJSON(ctx, &buf)
	if err != nil || n != 1 {
		t.Fatalf("ExportJSON() = %d, %v", n, err)
	}
	var exported domain.PromptEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported.ID != "new" || len(exported.Responses) != 1 || exported.Responses[0].Content != "new answer" {
		t.Errorf("exported = %+v", exported)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	entries, err := store.ListEntries(ctx, domain.HistoryQuery{})
	if err != nil || len(entries) != 0 {
		t.Errorf("after Clear: %d entries, %v", len(entries), err)
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer second.Close()

	stats, err := second.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.SchemaVersion != 1 {
		t.Errorf("schema version = %d, want 1", stats.SchemaVersion)
	}
}

func TestSQLiteStore_CorruptTargetsSurface(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entryID, _ := seedEntry(t, store, "e1", "hello", time.Now())

	if _, err := store.db.ExecContext(ctx, `UPDATE prompt_entries SET models = 'not json' WHERE id = ?`, entryID); err != nil {
		t.Fatal(err)
	}
	_, err := store.ListEntries(ctx, domain.HistoryQuery{})
	if err == nil || !strings.Contains(err.Error(), "decode models") {
		t.Errorf("ListEntries() error = %v, want decode failure", err)
	}
}

func TestSQLiteStore_UpdateEntryTargets(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	entryID, _ := seedEntry(t, store, "e1", "hello", time.Now())

	if err := store.UpdateEntryTargets(ctx, entryID, []string{"offline", "ollama"}, []string{"echo", "llama3.2"}); err != nil {
		t.Fatalf("UpdateEntryTargets() error: %v", err)
	}
	entries, err := store.ListEntries(ctx, domain.HistoryQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"offline", "ollama"}, entries[0].Entry.Providers); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"echo", "llama3.2"}, entries[0].Entry.Models); diff != "" {
		t.Errorf("models mismatch (-want +got):\n%s", diff)
	}
	if err := store.UpdateEntryTargets(ctx, entryID+100, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing entry error = %v, want ErrNotFound", err)
	}
}
