package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunMigrations_FreshDB(t *testing.T) {
	s := testStore(t)

	version, err := GetSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := testStore(t)

	require.NoError(t, RunMigrations(s.db, testLogger()))
	version, err := GetSchemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestRunMigrations_UpgradeFromV1(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "old.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME)`)
	require.NoError(t, err)
	require.NoError(t, applyMigration(db, migrations[0], testLogger()))

	require.NoError(t, RunMigrations(db, testLogger()))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('deliveries') WHERE name = 'batch_id'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetSchemaVersion_Empty(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSplitSQL(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, splitSQL(" A ;\n\n B; ;"))
}

func TestStore_Totals(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "messenger:1", Query: "One Piece", Title: "One Piece", Chapters: 1100, Found: true}))
	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "messenger:1", Query: "nope"}))
	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "telegram:2", Query: "one piece", Found: true}))
	require.NoError(t, s.RecordDelivery(ctx, DeliveryRecord{BatchID: "b1", UserKey: "messenger:1", Title: "One Piece", Chapter: 3, Images: 4, Sent: 5}))
	require.NoError(t, s.RecordDelivery(ctx, DeliveryRecord{BatchID: "b2", UserKey: "telegram:2", Title: "One Piece", Chapter: 1, Images: 2, Sent: 2, Failed: 1}))

	totals, err := s.Totals(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Totals{Searches: 3, Found: 2, Users: 2, Deliveries: 2, Sent: 7, Failed: 1}, totals)
}

func TestStore_TotalsSince(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "u", Query: "old", Found: true, At: old}))
	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "u", Query: "new", Found: true}))

	totals, err := s.Totals(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Searches)
}

func TestStore_TopQueries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, q := range []string{"Naruto", "naruto", "Bleach", "One Piece", "NARUTO", "bleach"} {
		require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "u", Query: q, Found: true}))
	}
	require.NoError(t, s.RecordSearch(ctx, SearchRecord{UserKey: "u", Query: "missing"}))

	top, err := s.TopQueries(ctx, time.Time{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []QueryCount{{"naruto", 3}, {"bleach", 2}}, top)
}

func TestStore_Empty(t *testing.T) {
	s := testStore(t)

	totals, err := s.Totals(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)

	top, err := s.TopQueries(context.Background(), time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}
