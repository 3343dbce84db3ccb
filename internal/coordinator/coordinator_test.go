package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
	"github.com/roach88/healthstore/internal/testutil"
)

const (
	testURI    = "test/breathing/2004"
	notifyURI  = "test/breathing"
	testCaller = "org.example.app"
)

var errInvalidPayload = errors.New("invalid payload")

// fakeHandler stores respiratory rate rows in the breathing table.
type fakeHandler struct {
	clock *testutil.ManualClock
	step  time.Duration
	deny  bool

	mu         sync.Mutex
	identities []string
}

func (h *fakeHandler) observe(ctx context.Context) {
	h.mu.Lock()
	h.identities = append(h.identities, Caller(ctx)+"/"+Effective(ctx))
	h.mu.Unlock()
	if h.clock != nil {
		h.clock.Advance(h.step)
	}
}

func (h *fakeHandler) Verify(_ context.Context, op OpKind, req Request) (record.Values, error) {
	if req.Values[record.ColNotes] == "invalid" {
		return nil, errInvalidPayload
	}
	if op != OpInsert && req.Where != "" {
		return nil, Unsupported(req.URI, "selection not allowed")
	}
	return req.Values, nil
}

func (h *fakeHandler) InsertInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (string, error) {
	h.observe(ctx)
	if h.deny {
		return "", nil
	}
	id, err := tx.Insert(ctx, "breathing", values)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d", uri, id), nil
}

func (h *fakeHandler) UpdateInTx(ctx context.Context, tx *store.Tx, _ string, values record.Values) (int64, error) {
	h.observe(ctx)
	if h.deny {
		return DeniedCount, nil
	}
	return tx.Update(ctx, "breathing", values, "_metric = ?", []any{int64(record.RespiratoryRate)})
}

func (h *fakeHandler) DeleteInTx(ctx context.Context, tx *store.Tx, _ string) (int64, error) {
	h.observe(ctx)
	if h.deny {
		return DeniedCount, nil
	}
	return tx.Delete(ctx, "breathing", "_metric = ?", []any{int64(record.RespiratoryRate)})
}

func (h *fakeHandler) Query(ctx context.Context, db store.Querier, _ QueryRequest) (*store.Rows, error) {
	h.mu.Lock()
	h.identities = append(h.identities, Caller(ctx)+"/"+Effective(ctx))
	h.mu.Unlock()
	if h.deny {
		return store.EmptyRows(record.Breathing.Columns()), nil
	}
	return db.Query(ctx, querysql.Select{Table: "breathing", OrderBy: "_id"})
}

func (h *fakeHandler) NotifyURI(string) string { return notifyURI }

type fakeResolver struct{ h Handler }

func (r fakeResolver) Resolve(uri string) (Handler, error) {
	if strings.HasPrefix(uri, "test/") {
		return r.h, nil
	}
	return nil, InvalidAddress(uri, "unknown address")
}

type fixture struct {
	db      *store.Store
	h       *fakeHandler
	c       *Coordinator
	changes []Change
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), keystore.Secret("test-passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, h: &fakeHandler{}}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDs(testutil.NewSequentialIDs("tx")),
		WithNotifier(func(c Change) { f.changes = append(f.changes, c) }),
	}, opts...)
	f.c = New(db, fakeResolver{f.h}, opts...)
	return f
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	rows, err := f.db.Query(context.Background(), querysql.Select{Table: "breathing"})
	require.NoError(t, err)
	return rows.Len()
}

func rate(v float64) record.Values {
	return record.Values{record.ColMetric: int64(record.RespiratoryRate), record.ColValue: v}
}

func TestInsert_CommitsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	uri, err := f.c.Insert(ctx, testURI, rate(14))
	require.NoError(t, err)
	assert.Equal(t, testURI+"/1", uri)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, []Change{{URI: notifyURI, TxID: "tx-1"}}, f.changes)
}

func TestInsert_DeniedIsSilent(t *testing.T) {
	f := newFixture(t)
	f.h.deny = true
	ctx := WithCaller(context.Background(), testCaller)

	uri, err := f.c.Insert(ctx, testURI, rate(14))
	require.NoError(t, err)
	assert.Empty(t, uri)
	assert.Equal(t, 0, f.count(t))
	assert.Empty(t, f.changes)

	n, err := f.c.Update(ctx, testURI, rate(15), "", nil)
	require.NoError(t, err)
	assert.Equal(t, DeniedCount, n)

	n, err = f.c.Delete(ctx, testURI, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DeniedCount, n)
	assert.Empty(t, f.changes)
}

func TestInsert_VerifyFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	v := rate(14)
	v[record.ColNotes] = "invalid"
	_, err := f.c.Insert(ctx, testURI, v)
	assert.ErrorIs(t, err, errInvalidPayload)
	assert.Equal(t, 0, f.count(t))
	assert.Empty(t, f.changes)
}

func TestInsert_StorageErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	// _metric is NOT NULL.
	_, err := f.c.Insert(ctx, testURI, record.Values{record.ColValue: 1.0})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.Empty(t, f.changes)
}

func TestOperations_RequireCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Insert(context.Background(), testURI, rate(14))
	assert.True(t, IsNoCaller(err))

	_, err = f.c.Query(WithCaller(context.Background(), ""), QueryRequest{URI: testURI})
	assert.True(t, IsNoCaller(err))
}

func TestOperations_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	_, err := f.c.Insert(ctx, "elsewhere/body", rate(14))
	assert.True(t, IsInvalidAddress(err))

	_, err = f.c.ApplyBatch(ctx, []Operation{
		{Kind: OpInsert, URI: testURI, Values: rate(14)},
		{Kind: OpInsert, URI: "elsewhere/body", Values: rate(14)},
	})
	assert.True(t, IsInvalidAddress(err))
	assert.Equal(t, 0, f.count(t))
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	_, err := f.c.BulkInsert(ctx, testURI, []record.Values{rate(12), rate(13)})
	require.NoError(t, err)

	n, err := f.c.Update(ctx, testURI, record.Values{record.ColValue: 20.0}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.c.Update(ctx, testURI, record.Values{record.ColValue: 20.0}, "value > ?", []any{1})
	assert.True(t, IsUnsupported(err))

	n, err = f.c.Delete(ctx, testURI, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Nothing left: no notification for the empty delete.
	before := len(f.changes)
	n, err = f.c.Delete(ctx, testURI, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Len(t, f.changes, before)
}

func TestBulkInsert(t *testing.T) {
	yields := 0
	f := newFixture(t, WithYield(func() { yields++ }))
	ctx := WithCaller(context.Background(), testCaller)

	n, err := f.c.BulkInsert(ctx, testURI, []record.Values{rate(12), rate(13), rate(14)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 3, f.count(t))
	assert.Equal(t, 2, yields)
	assert.Len(t, f.changes, 1, "one notification per transaction and address")

	bad := rate(15)
	bad[record.ColNotes] = "invalid"
	_, err = f.c.BulkInsert(ctx, testURI, []record.Values{rate(16), bad})
	assert.ErrorIs(t, err, errInvalidPayload)
	assert.Equal(t, 3, f.count(t))
}

func TestApplyBatch_Results(t *testing.T) {
	yields := 0
	f := newFixture(t, WithYield(func() { yields++ }))
	ctx := WithCaller(context.Background(), testCaller)

	results, err := f.c.ApplyBatch(ctx, []Operation{
		{Kind: OpInsert, URI: testURI, Values: rate(12)},
		{Kind: OpInsert, URI: testURI, Values: rate(13), YieldAllowed: true},
		{Kind: OpUpdate, URI: testURI, Values: record.Values{record.ColValue: 18.0}},
		{Kind: OpDelete, URI: testURI, YieldAllowed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{URI: testURI + "/1"},
		{URI: testURI + "/2"},
		{Count: 2},
		{Count: 2},
	}, results)
	assert.Equal(t, 2, yields)
	assert.Equal(t, []Change{{URI: notifyURI, TxID: "tx-1"}}, f.changes)
}

func TestApplyBatch_FailureLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)
	_, err := f.c.Insert(ctx, testURI, rate(10))
	require.NoError(t, err)
	f.changes = nil

	bad := rate(99)
	bad[record.ColNotes] = "invalid"
	ops := []Operation{
		{Kind: OpInsert, URI: testURI, Values: rate(11)},
		{Kind: OpUpdate, URI: testURI, Values: record.Values{record.ColValue: 50.0}},
		{Kind: OpInsert, URI: testURI, Values: bad},
		{Kind: OpDelete, URI: testURI},
	}
	_, err = f.c.ApplyBatch(ctx, ops)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidPayload)
	assert.Contains(t, err.Error(), "batch operation 2")

	rows, err := f.db.Query(context.Background(), querysql.Select{Table: "breathing", Columns: []string{"value"}})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{10.0}}, rows.Data)
	assert.Empty(t, f.changes)
}

func TestApplyBatch_Empty(t *testing.T) {
	f := newFixture(t)
	results, err := f.c.ApplyBatch(WithCaller(context.Background(), testCaller), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, f.c.Stats().Snapshot())
}

func TestApplyBatch_RejectsQueries(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.ApplyBatch(WithCaller(context.Background(), testCaller), []Operation{{Kind: OpQuery, URI: testURI}})
	assert.True(t, IsUnsupported(err))
}

func TestCancelledContextBeforeBegin(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(WithCaller(context.Background(), testCaller))
	cancel()

	_, err := f.c.Insert(ctx, testURI, rate(14))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.count(t))
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)
	_, err := f.c.BulkInsert(ctx, testURI, []record.Values{rate(12), rate(13)})
	require.NoError(t, err)

	rows, err := f.c.Query(ctx, QueryRequest{URI: testURI})
	require.NoError(t, err)
	assert.Equal(t, 2, rows.Len())

	f.h.deny = true
	rows, err = f.c.Query(ctx, QueryRequest{URI: testURI})
	require.NoError(t, err)
	assert.Equal(t, 0, rows.Len())
	assert.Equal(t, record.Breathing.Columns(), rows.Columns)
}

func TestIdentityClearedDuringStorageAccess(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	_, err := f.c.Insert(ctx, testURI, rate(14))
	require.NoError(t, err)
	_, err = f.c.Query(ctx, QueryRequest{URI: testURI})
	require.NoError(t, err)

	assert.Equal(t, []string{testCaller + "/" + Self, testCaller + "/" + Self}, f.h.identities)
	assert.Equal(t, testCaller, Effective(ctx), "identity restored after the call")
}

func TestClearIdentity_Nesting(t *testing.T) {
	ctx := WithCaller(context.Background(), testCaller)
	assert.Equal(t, testCaller, Effective(ctx))

	outer := ClearIdentity(ctx)
	inner := ClearIdentity(ctx)
	assert.Equal(t, Self, Effective(ctx))
	assert.Equal(t, testCaller, Caller(ctx))

	RestoreIdentity(inner)
	assert.Equal(t, Self, Effective(ctx), "still cleared until fully unwound")
	RestoreIdentity(outer)
	assert.Equal(t, testCaller, Effective(ctx))

	// Unbalanced restores do not underflow.
	RestoreIdentity(outer)
	assert.Equal(t, testCaller, Effective(ctx))
	ClearIdentity(ctx)
	assert.Equal(t, Self, Effective(ctx))

	// Contexts without a caller are inert.
	bare := context.Background()
	RestoreIdentity(ClearIdentity(bare))
	assert.Empty(t, Effective(bare))
	assert.False(t, InBatch(bare))
}

func TestSubscribe_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), testCaller)

	var got []Change
	cancel := f.c.Subscribe(func(c Change) { got = append(got, c) })
	_, err := f.c.Insert(ctx, testURI, rate(14))
	require.NoError(t, err)
	cancel()
	_, err = f.c.Insert(ctx, testURI, rate(15))
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Len(t, f.changes, 2)
}

func TestConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	// f.changes is not synchronized.
	f.c.subscribers = map[int]func(Change){}

	const workers, perWorker = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx := WithCaller(context.Background(), fmt.Sprintf("org.worker%d", w))
			for i := 0; i < perWorker; i++ {
				if _, err := f.c.Insert(ctx, testURI, rate(float64(i))); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, workers*perWorker, f.count(t))
	assert.Len(t, f.c.Stats().Snapshot(), workers)
}

func TestOpKindText(t *testing.T) {
	var k OpKind
	require.NoError(t, k.UnmarshalText([]byte("update")))
	assert.Equal(t, OpUpdate, k)
	b, err := OpDelete.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "delete", string(b))
	assert.Error(t, k.UnmarshalText([]byte("upsert")))
}

func TestStats_Dump(t *testing.T) {
	clock := testutil.NewManualClock()
	f := newFixture(t, WithClock(clock))
	f.h.clock = clock
	f.h.step = 250 * time.Millisecond

	a := WithCaller(context.Background(), "org.a")
	b := WithCaller(context.Background(), "org.b")

	_, err := f.c.Insert(a, testURI, rate(12))
	require.NoError(t, err)
	_, err = f.c.Insert(a, testURI, rate(13))
	require.NoError(t, err)
	_, err = f.c.Query(a, QueryRequest{URI: testURI})
	require.NoError(t, err)

	_, err = f.c.ApplyBatch(b, []Operation{
		{Kind: OpInsert, URI: testURI, Values: rate(14)},
		{Kind: OpInsert, URI: testURI, Values: rate(15)},
		{Kind: OpDelete, URI: testURI},
	})
	require.NoError(t, err)
	_, err = f.c.Update(b, testURI, record.Values{record.ColValue: 1.0}, "", nil)
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	snap := f.c.Stats().Snapshot()
	assert.Equal(t, Counts{Query: 1, Insert: 2, Duration: 501 * time.Millisecond}, snap["org.a"])
	assert.Equal(t, Counts{Update: 1, Batch: 1, BatchInsert: 2, BatchDelete: 1, Duration: time.Second}, snap["org.b"])

	var buf bytes.Buffer
	require.NoError(t, f.c.Dump(&buf, "  "))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "stats_dump", buf.Bytes())
}
