// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the audit_log table

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "audit.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		ClientID: "client-123",
		Actor:    "admin@example.com",
		Action:   AuditRevokeKey,
		Target:   "ABC123",
		Detail:   map[string]any{"index": 3},
	}

	err := store.AppendAuditLog(ctx, entry)
	require.NoError(t, err)

	// Should have generated ID and timestamp
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "client-123", got.ClientID)
	assert.Equal(t, "admin@example.com", got.Actor)
	assert.Equal(t, AuditRevokeKey, got.Action)
	assert.Equal(t, "ABC123", got.Target)
	assert.True(t, entry.Timestamp.Equal(got.Timestamp))
	// JSON numbers come back as float64
	assert.Equal(t, map[string]any{"index": float64(3)}, got.Detail)
}

func TestAuditStore_List_Empty(t *testing.T) {
	store := setupTestStore(t)

	entries, err := store.ListAuditLog(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestAuditStore_List_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, action := range []AuditAction{AuditLogin, AuditGenerateKey, AuditLogout} {
		entry := &AuditEntry{
			ClientID:  "client-1",
			Action:    action,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.AppendAuditLog(ctx, entry))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, AuditLogout, entries[0].Action)
	assert.Equal(t, AuditGenerateKey, entries[1].Action)
	assert.Equal(t, AuditLogin, entries[2].Action)
}

func TestAuditStore_List_BySince(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	baseTime := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := &AuditEntry{
			ClientID:  "client-1",
			Action:    AuditLogin,
			Target:    fmt.Sprintf("target-%d", i),
			Timestamp: baseTime.Add(time.Duration(i) * 10 * time.Minute),
		}
		require.NoError(t, store.AppendAuditLog(ctx, entry))
	}

	since := baseTime.Add(15 * time.Minute)
	entries, err := store.ListAuditLog(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "target-2", entries[0].Target)
}

func TestAuditStore_List_ByClientAndAction(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, e := range []AuditEntry{
		{ClientID: "a", Action: AuditLogin},
		{ClientID: "a", Action: AuditRevokeKey, Target: "K1"},
		{ClientID: "b", Action: AuditRevokeKey, Target: "K2"},
		{ClientID: "b", Action: AuditLogout},
	} {
		e := e
		require.NoError(t, store.AppendAuditLog(ctx, &e))
	}

	client := "b"
	entries, err := store.ListAuditLog(ctx, AuditFilter{ClientID: &client})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	action := AuditRevokeKey
	entries, err = store.ListAuditLog(ctx, AuditFilter{Action: &action})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.ListAuditLog(ctx, AuditFilter{ClientID: &client, Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "K2", entries[0].Target)
}

func TestAuditStore_List_Limit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{ClientID: "c", Action: AuditLogin}))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}

func TestAuditAction_Valid(t *testing.T) {
	for _, a := range ValidAuditActions {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, AuditAction("approve_principal").Valid())
}

func TestSQLiteStore_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.AppendAuditLog(ctx, &AuditEntry{ClientID: "c", Action: AuditLogin}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.Ping(ctx))
	entries, err := s2.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
