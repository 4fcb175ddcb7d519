package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/erbridge/erbridge/pkg/failure"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check passed before Init")
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("migrate passed before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreDefaults(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}

	s, err := NewSQLiteStore(Config{Path: "/tmp/journal.db"})
	if err != nil {
		t.Fatal(err)
	}
	if s.cfg.MaxOpenConns != 4 || s.cfg.MaxIdleConns != 2 || s.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("unexpected defaults: %+v", s.cfg)
	}

	mem, err := NewSQLiteStore(Config{Path: ":memory:", MaxOpenConns: 10})
	if err != nil {
		t.Fatal(err)
	}
	if mem.cfg.MaxOpenConns != 1 {
		t.Errorf("in-memory MaxOpenConns = %d, want 1", mem.cfg.MaxOpenConns)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"failures", "lifecycle"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// A second run is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

func TestFailureJournal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	code := int64(33)
	records := []*FailureRecord{
		{InstanceID: "a", Facade: "engine", Kind: "not_found", Code: &code, Message: "Unknown record", Signature: strPtr("GetRecord(ds, id, flags)"), Parameters: strPtr(`{"ds":"TEST"}`), Timestamp: base},
		{InstanceID: "a", Facade: "config", Kind: "illegal_state", Message: "destroyed", Timestamp: base.Add(time.Minute)},
		{InstanceID: "b", Facade: "engine", Kind: "not_found", Message: "Unknown entity", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := store.RecordFailure(ctx, r); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if r.ID == 0 {
			t.Error("RecordFailure() did not assign an ID")
		}
	}

	tests := []struct {
		name   string
		filter FailureFilter
		want   []string
	}{
		{"all newest first", FailureFilter{}, []string{"Unknown entity", "destroyed", "Unknown record"}},
		{"by instance", FailureFilter{InstanceID: strPtr("a")}, []string{"destroyed", "Unknown record"}},
		{"by kind", FailureFilter{Kind: strPtr("not_found")}, []string{"Unknown entity", "Unknown record"}},
		{"instance and kind", FailureFilter{InstanceID: strPtr("b"), Kind: strPtr("illegal_state")}, nil},
		{"limit", FailureFilter{Limit: 1}, []string{"Unknown entity"}},
		{"offset", FailureFilter{Limit: 1, Offset: 2}, []string{"Unknown record"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListFailures(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListFailures() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListFailures() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, rec := range got {
				if rec.Message != tt.want[i] {
					t.Errorf("record %d message = %q, want %q", i, rec.Message, tt.want[i])
				}
			}
		})
	}

	got, err := store.ListFailures(ctx, FailureFilter{Kind: strPtr("not_found"), InstanceID: strPtr("a")})
	if err != nil || len(got) != 1 {
		t.Fatalf("ListFailures() = %v, %v", got, err)
	}
	rec := got[0]
	if rec.Code == nil || *rec.Code != 33 {
		t.Errorf("Code = %v, want 33", rec.Code)
	}
	if rec.Signature == nil || *rec.Signature != "GetRecord(ds, id, flags)" {
		t.Errorf("Signature = %v", rec.Signature)
	}
	if rec.Parameters == nil || *rec.Parameters != `{"ds":"TEST"}` {
		t.Errorf("Parameters = %v", rec.Parameters)
	}
	if !rec.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, base)
	}

	counts, err := store.CountFailuresByKind(ctx, nil)
	if err != nil {
		t.Fatalf("CountFailuresByKind() error = %v", err)
	}
	if counts["not_found"] != 2 || counts["illegal_state"] != 1 {
		t.Errorf("CountFailuresByKind() = %v", counts)
	}
	counts, _ = store.CountFailuresByKind(ctx, strPtr("b"))
	if len(counts) != 1 || counts["not_found"] != 1 {
		t.Errorf("CountFailuresByKind(b) = %v", counts)
	}
}

func TestLifecycleJournal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, state := range []LifecycleState{LifecycleBuilt, LifecycleReinitialized, LifecycleDestroying, LifecycleDestroyed} {
		rec := &LifecycleRecord{InstanceID: "a", State: state, Message: string(state)}
		if err := store.RecordLifecycle(ctx, rec); err != nil {
			t.Fatalf("RecordLifecycle(%s) error = %v", state, err)
		}
	}
	if err := store.RecordLifecycle(ctx, &LifecycleRecord{InstanceID: "b", State: LifecycleBuilt, Details: strPtr(`{"workers":2}`)}); err != nil {
		t.Fatal(err)
	}

	bad := &LifecycleRecord{InstanceID: "a", State: "exploded"}
	if err := store.RecordLifecycle(ctx, bad); err == nil {
		t.Error("RecordLifecycle() accepted an unknown state")
	}

	got, err := store.ListLifecycle(ctx, strPtr("a"), 0, 0)
	if err != nil {
		t.Fatalf("ListLifecycle() error = %v", err)
	}
	want := []LifecycleState{LifecycleBuilt, LifecycleReinitialized, LifecycleDestroying, LifecycleDestroyed}
	if len(got) != len(want) {
		t.Fatalf("ListLifecycle() returned %d records, want %d", len(got), len(want))
	}
	for i, rec := range got {
		if rec.State != want[i] {
			t.Errorf("record %d state = %s, want %s", i, rec.State, want[i])
		}
	}

	all, _ := store.ListLifecycle(ctx, nil, 2, 3)
	if len(all) != 2 || all[1].InstanceID != "b" {
		t.Errorf("paged ListLifecycle() = %+v", all)
	}
	if all[1].Details == nil || *all[1].Details != `{"workers":2}` {
		t.Errorf("Details = %v", all[1].Details)
	}
}

func TestPurgeBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = store.RecordFailure(ctx, &FailureRecord{InstanceID: "a", Kind: "engine", Message: "old", Timestamp: now.Add(-48 * time.Hour)})
	_ = store.RecordFailure(ctx, &FailureRecord{InstanceID: "a", Kind: "engine", Message: "new", Timestamp: now})
	_ = store.RecordLifecycle(ctx, &LifecycleRecord{InstanceID: "a", State: LifecycleBuilt, Timestamp: now.Add(-48 * time.Hour)})

	n, err := store.PurgeBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PurgeBefore() removed %d rows, want 2", n)
	}

	left, _ := store.ListFailures(ctx, FailureFilter{})
	if len(left) != 1 || left[0].Message != "new" {
		t.Errorf("remaining failures = %+v", left)
	}
	lc, _ := store.ListLifecycle(ctx, nil, 0, 0)
	if len(lc) != 0 {
		t.Errorf("remaining lifecycle = %d", len(lc))
	}
}

func TestOpenFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.RecordFailure(ctx, &FailureRecord{InstanceID: "a", Kind: "engine", Message: "boom"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ListFailures(ctx, FailureFilter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("ListFailures() after reopen = %v, %v", got, err)
	}
}

func TestNewFailureRecord(t *testing.T) {
	params := failure.NewParameters(failure.Param("dataSourceCode", "TEST"), failure.Param("recordID", "1"))
	err := failure.Translate(-2, 33, "0033E|Unknown record", "GetRecord(dataSourceCode, recordID, flags)", params)

	rec := NewFailureRecord("inst", "engine", err)
	if rec.Kind != string(failure.KindNotFound) {
		t.Errorf("Kind = %s", rec.Kind)
	}
	if rec.Code == nil || *rec.Code != 33 {
		t.Errorf("Code = %v", rec.Code)
	}
	if rec.Message != "Unknown record" {
		t.Errorf("Message = %q", rec.Message)
	}
	if rec.Signature == nil {
		t.Error("Signature not recorded")
	}
	if rec.Parameters == nil || *rec.Parameters != `{"dataSourceCode":"TEST","recordID":"1"}` {
		t.Errorf("Parameters = %v", rec.Parameters)
	}

	plain := NewFailureRecord("inst", "config", errors.New("disk on fire"))
	if plain.Kind != string(failure.KindInternal) || plain.Message != "disk on fire" || plain.Code != nil {
		t.Errorf("plain record = %+v", plain)
	}
}
