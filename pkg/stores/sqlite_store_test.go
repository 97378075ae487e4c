package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

// setupTestStore creates a migrated store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "state.db"),
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

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "state.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
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

// TestStoreRequiresPath tests config validation
func TestStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if !faults.HasKind(err, faults.KindConfig) {
		t.Errorf("error kind = %s, want config", faults.KindOf(err))
	}
}

// TestStoreMigrations tests that migrations create the expected tables
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	tables := []string{"sessions", "machine_identity", "usage_counters"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestSessionCRUD tests session persistence
func TestSessionCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	expires := now.Add(time.Hour)
	session := &Session{
		ID:           uuid.New().String(),
		Account:      "user@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expires,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := PutSession(ctx, store.db, session); err != nil {
		t.Fatalf("failed to put session: %v", err)
	}

	got, err := store.GetSession(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" {
		t.Errorf("tokens = %q/%q, want access-1/refresh-1", got.AccessToken, got.RefreshToken)
	}

	// Upsert replaces tokens for the same account
	session.AccessToken = "access-2"
	session.UpdatedAt = now.Add(time.Minute)
	if err := PutSession(ctx, store.db, session); err != nil {
		t.Fatalf("failed to upsert session: %v", err)
	}

	got, err = store.GetSession(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("failed to get session after upsert: %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("access token = %q after upsert, want access-2", got.AccessToken)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("listed %d sessions, want 1", len(sessions))
	}

	if err := DeleteSession(ctx, store.db, "user@example.com"); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}

	if _, err := store.GetSession(ctx, "user@example.com"); err == nil {
		t.Error("expected error getting deleted session")
	}
}

// TestSessionNotFoundKind tests that missing rows surface as database faults
func TestSessionNotFoundKind(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSession(context.Background(), "missing@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if !faults.HasKind(err, faults.KindDatabase) {
		t.Errorf("error kind = %s, want database", faults.KindOf(err))
	}
}

// TestMachineIdentity tests the singleton identity row
func TestMachineIdentity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetIdentity(ctx); err == nil {
		t.Fatal("expected error before identity is written")
	}

	first := &MachineIdentity{
		MachineID: uuid.New().String(),
		DeviceID:  uuid.New().String(),
		SQMID:     uuid.New().String(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := ReplaceIdentity(ctx, store.db, first); err != nil {
		t.Fatalf("failed to write identity: %v", err)
	}

	second := &MachineIdentity{
		MachineID: uuid.New().String(),
		DeviceID:  uuid.New().String(),
		SQMID:     uuid.New().String(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := ReplaceIdentity(ctx, store.db, second); err != nil {
		t.Fatalf("failed to replace identity: %v", err)
	}

	got, err := store.GetIdentity(ctx)
	if err != nil {
		t.Fatalf("failed to get identity: %v", err)
	}
	if got.MachineID != second.MachineID {
		t.Error("identity row was not replaced")
	}

	// Still a single row
	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM machine_identity").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("identity rows = %d, want 1", count)
	}
}

// TestUsageCounters tests quota counter operations
func TestUsageCounters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := SetUsageLimit(ctx, store.db, "requests", 150); err != nil {
		t.Fatalf("failed to set limit: %v", err)
	}
	if err := AddUsage(ctx, store.db, "requests", 3); err != nil {
		t.Fatalf("failed to add usage: %v", err)
	}
	if err := AddUsage(ctx, store.db, "requests", 4); err != nil {
		t.Fatalf("failed to add usage: %v", err)
	}

	counter, err := store.GetUsage(ctx, "requests")
	if err != nil {
		t.Fatalf("failed to get usage: %v", err)
	}
	if counter.Used != 7 {
		t.Errorf("used = %d, want 7", counter.Used)
	}
	if counter.Limit != 150 {
		t.Errorf("limit = %d, want 150", counter.Limit)
	}

	if err := ResetUsage(ctx, store.db, "requests"); err != nil {
		t.Fatalf("failed to reset usage: %v", err)
	}

	counter, err = store.GetUsage(ctx, "requests")
	if err != nil {
		t.Fatal(err)
	}
	if counter.Used != 0 {
		t.Errorf("used = %d after reset, want 0", counter.Used)
	}

	if err := ResetUsage(ctx, store.db, "nonexistent"); err == nil {
		t.Error("expected error resetting unknown counter")
	}
}
