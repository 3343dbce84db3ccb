package provider

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/healthstore/internal/access"
	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/sqlcheck"
	"github.com/roach88/healthstore/internal/store"
	"github.com/roach88/healthstore/internal/testutil"
)

const (
	testOwner  = "org.lineageos.settings"
	testCaller = "org.example.tracker"
)

type env struct {
	t      *testing.T
	db     *store.Store
	router *Router
	c      *coordinator.Coordinator
	clock  *testutil.ManualClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), keystore.Secret("test-passphrase"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := db.SchemaTokens(context.Background())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock()
	router := NewRouter(Deps{
		Owner:   testOwner,
		Checker: sqlcheck.New(append(tokens, sqlcheck.SubqueryKeyword)),
		Clock:   clock,
		Logger:  logger,
	})
	c := coordinator.New(db, router,
		coordinator.WithLogger(logger),
		coordinator.WithIDs(testutil.NewSequentialIDs("tx")),
	)
	return &env{t: t, db: db, router: router, c: c, clock: clock}
}

func as(caller string) context.Context {
	return coordinator.WithCaller(context.Background(), caller)
}

// grant sets the permission of caller on metric as the owner.
func (e *env) grant(caller string, metric record.Metric, p access.Permission) {
	e.t.Helper()
	uri, err := e.c.Insert(as(testOwner), e.router.AccessURI("", record.Unknown),
		access.Entry{Caller: caller, Metric: metric, Permission: p}.Values())
	require.NoError(e.t, err)
	require.NotEmpty(e.t, uri)
}

// count returns the rows of table, bypassing every facade.
func (e *env) count(table string) int {
	e.t.Helper()
	rows, err := e.db.Query(context.Background(), querysql.Select{Table: table})
	require.NoError(e.t, err)
	return rows.Len()
}

func weight(kg float64) record.Values {
	return record.Values{record.ColMetric: int64(record.Weight), record.ColTime: int64(1_000), record.ColValue: kg}
}
