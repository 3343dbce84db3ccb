package access

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
)

const caller = "org.example.tracker"

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), keystore.Secret("test-passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func set(t *testing.T, db *store.Store, e Entry) {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, Set(ctx, tx, e))
	require.NoError(t, tx.Commit())
}

func TestPermission(t *testing.T) {
	assert.True(t, All.Has(Read))
	assert.True(t, All.Has(Write))
	assert.True(t, Read.Has(None))
	assert.False(t, Read.Has(Write))
	assert.False(t, None.Has(Read))
	assert.False(t, Permission(4).Valid())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "Permission(7)", Permission(7).String())
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		in   string
		want Permission
		ok   bool
	}{
		{"none", None, true},
		{"READ", Read, true},
		{" write ", Write, true},
		{"all", All, true},
		{"2", Write, true},
		{"4", None, false},
		{"-1", None, false},
		{"admin", None, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePermission(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPermissions_DefaultIsAll(t *testing.T) {
	s := NewStore(createTestStore(t))
	ctx := context.Background()

	for _, m := range record.Metrics() {
		perm, err := s.Permissions(ctx, caller, m)
		require.NoError(t, err)
		assert.Equal(t, All, perm, m.String())
	}
}

func TestPermissions_EntryOverridesDefault(t *testing.T) {
	db := createTestStore(t)
	s := NewStore(db)
	ctx := context.Background()

	set(t, db, Entry{Caller: caller, Metric: record.Weight, Permission: Write})

	canRead, err := s.CanRead(ctx, caller, record.Weight)
	require.NoError(t, err)
	canWrite, err := s.CanWrite(ctx, caller, record.Weight)
	require.NoError(t, err)
	assert.False(t, canRead)
	assert.True(t, canWrite)

	// Other callers and metrics are unaffected.
	canRead, err = s.CanRead(ctx, "org.example.other", record.Weight)
	require.NoError(t, err)
	assert.True(t, canRead)
	canRead, err = s.CanRead(ctx, caller, record.HeartRate)
	require.NoError(t, err)
	assert.True(t, canRead)

	set(t, db, Entry{Caller: caller, Metric: record.Weight, Permission: Read})
	perm, err := s.Permissions(ctx, caller, record.Weight)
	require.NoError(t, err)
	assert.Equal(t, Read, perm)
}

func TestRemove_RestoresDefault(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	set(t, db, Entry{Caller: caller, Metric: record.Sleep, Permission: None})

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	n, err := Remove(ctx, tx, caller, record.Sleep)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Reads inside the transaction see the pending delete.
	perm, err := NewStore(tx).Permissions(ctx, caller, record.Sleep)
	require.NoError(t, err)
	assert.Equal(t, All, perm)
	require.NoError(t, tx.Commit())
}

func TestList(t *testing.T) {
	db := createTestStore(t)
	set(t, db, Entry{Caller: "org.b", Metric: record.Weight, Permission: Read})
	set(t, db, Entry{Caller: "org.a", Metric: record.Mood, Permission: None})
	set(t, db, Entry{Caller: "org.a", Metric: record.Cycling, Permission: Write})

	s := NewStore(db)
	all, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Caller: "org.a", Metric: record.Cycling, Permission: Write},
		{Caller: "org.a", Metric: record.Mood, Permission: None},
		{Caller: "org.b", Metric: record.Weight, Permission: Read},
	}, all)

	some, err := s.List(context.Background(), "org.b")
	require.NoError(t, err)
	assert.Len(t, some, 1)

	none, err := s.List(context.Background(), "org.c")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEntryFromValues(t *testing.T) {
	e, err := EntryFromValues(record.Values{
		record.ColAccessCaller: "org.a",
		record.ColAccessMetric: float64(record.Weight),
	})
	require.NoError(t, err)
	assert.Equal(t, Entry{Caller: "org.a", Metric: record.Weight, Permission: All}, e)

	_, err = EntryFromValues(record.Values{record.ColAccessMetric: "many"})
	assert.Error(t, err)
}
