package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
)

// DeniedCount is the update or delete count returned when the caller lacks
// write permission. Denied inserts return an empty URI.
const DeniedCount int64 = -2

// OpKind identifies an operation.
type OpKind int

const (
	OpQuery OpKind = iota
	OpInsert
	OpUpdate
	OpDelete
)

// String implements fmt.Stringer.
func (k OpKind) String() string {
	switch k {
	case OpQuery:
		return "query"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// ParseOpKind parses an operation name.
func ParseOpKind(s string) (OpKind, error) {
	for _, k := range []OpKind{OpQuery, OpInsert, OpUpdate, OpDelete} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OpKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOpKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Request is a write addressed at one URI. Where and Args carry an
// optional caller-supplied selection.
type Request struct {
	URI    string
	Values record.Values
	Where  string
	Args   []any
}

// QueryRequest is a read addressed at one URI.
type QueryRequest struct {
	URI        string
	Projection []string
	Where      string
	Args       []any
	SortOrder  string
}

// Handler serves the addresses of one facade. The coordinator owns the
// transaction; handlers only run statements inside it.
type Handler interface {
	// Verify checks a write before it touches storage and returns the
	// values to store.
	Verify(ctx context.Context, op OpKind, req Request) (record.Values, error)

	// InsertInTx returns the URI of the new row, or "" when denied.
	InsertInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (string, error)

	// UpdateInTx and DeleteInTx return the affected row count, or
	// DeniedCount when denied.
	UpdateInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (int64, error)
	DeleteInTx(ctx context.Context, tx *store.Tx, uri string) (int64, error)

	// Query reads through db. A denied read returns empty rows.
	Query(ctx context.Context, db store.Querier, q QueryRequest) (*store.Rows, error)

	// NotifyURI returns the address observers of uri are notified on.
	NotifyURI(uri string) string
}

// Resolver maps a URI to the handler serving it.
type Resolver interface {
	Resolve(uri string) (Handler, error)
}

// Clock supplies wall time for statistics.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IDGenerator generates transaction ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 transaction ids.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Change is delivered to subscribers once per touched address after a
// transaction commits.
type Change struct {
	URI  string
	TxID string
}

// Coordinator runs every operation of every facade in engine transactions.
//
// A single call runs in its own transaction unless ctx already belongs to
// one, in which case it joins it. A transaction either commits and
// notifies each touched address once, or rolls back and notifies nobody.
type Coordinator struct {
	db       *store.Store
	resolver Resolver
	clock    Clock
	ids      IDGenerator
	logger   *slog.Logger
	yield    func()
	stats    *Stats

	mu          sync.RWMutex
	subscribers map[int]func(Change)
	nextSub     int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for statistics.
func WithClock(c Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithIDs sets the transaction id generator.
func WithIDs(g IDGenerator) Option {
	return func(co *Coordinator) { co.ids = g }
}

// WithYield sets the function run between batch operations that allow
// yielding. It must not touch the open transaction.
func WithYield(fn func()) Option {
	return func(co *Coordinator) { co.yield = fn }
}

// WithNotifier subscribes fn to every committed change.
func WithNotifier(fn func(Change)) Option {
	return func(co *Coordinator) { co.subscribe(fn) }
}

// New returns a Coordinator over db, resolving addresses with r.
func New(db *store.Store, r Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:          db,
		resolver:    r,
		clock:       systemClock{},
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		yield:       runtime.Gosched,
		subscribers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats = newStats(c.clock)
	return c
}

// Subscribe registers fn for committed changes and returns a function that
// unregisters it.
func (c *Coordinator) Subscribe(fn func(Change)) (cancel func()) {
	id := c.subscribe(fn)
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) subscribe(fn func(Change)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return id
}

// Stats returns the activity statistics.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

// Dump writes the activity report.
func (c *Coordinator) Dump(w io.Writer, prefix string) error {
	return c.stats.Dump(w, prefix)
}

// Insert adds one row at uri and returns its URI, or "" when denied.
func (c *Coordinator) Insert(ctx context.Context, uri string, values record.Values) (string, error) {
	st, h, err := c.prepare(ctx, uri)
	if err != nil {
		return "", err
	}
	var out string
	err = c.inTx(ctx, st, false, func(ctx context.Context, tx *txState) error {
		out, err = c.insert(ctx, st, tx, h, uri, values)
		return err
	})
	return out, err
}

// Update changes the rows at uri and returns the count, or DeniedCount.
func (c *Coordinator) Update(ctx context.Context, uri string, values record.Values, where string, args []any) (int64, error) {
	st, h, err := c.prepare(ctx, uri)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.inTx(ctx, st, false, func(ctx context.Context, tx *txState) error {
		n, err = c.update(ctx, st, tx, h, Request{URI: uri, Values: values, Where: where, Args: args})
		return err
	})
	return n, err
}

// Delete removes the rows at uri and returns the count, or DeniedCount.
func (c *Coordinator) Delete(ctx context.Context, uri string, where string, args []any) (int64, error) {
	st, h, err := c.prepare(ctx, uri)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.inTx(ctx, st, false, func(ctx context.Context, tx *txState) error {
		n, err = c.delete(ctx, st, tx, h, Request{URI: uri, Where: where, Args: args})
		return err
	})
	return n, err
}

// BulkInsert inserts every element of values at uri in one transaction
// and returns len(values). Denied elements are skipped silently.
func (c *Coordinator) BulkInsert(ctx context.Context, uri string, values []record.Values) (int64, error) {
	st, h, err := c.prepare(ctx, uri)
	if err != nil {
		return 0, err
	}
	c.stats.begin(st, statBatch)
	defer c.stats.finish(st)

	err = c.inTx(ctx, st, false, func(ctx context.Context, tx *txState) error {
		for i, v := range values {
			if i > 0 {
				c.yield()
			}
			if _, err := c.insert(ctx, st, tx, h, uri, v); err != nil {
				return fmt.Errorf("bulk insert element %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(values)), nil
}

// Query reads the rows at q.URI. A denied read returns empty rows.
func (c *Coordinator) Query(ctx context.Context, q QueryRequest) (*store.Rows, error) {
	st, h, err := c.prepare(ctx, q.URI)
	if err != nil {
		return nil, err
	}
	c.stats.begin(st, statQuery)
	defer c.stats.finish(st)

	var db store.Querier = c.db
	if st.tx != nil {
		db = st.tx.tx
	}
	tok := ClearIdentity(ctx)
	defer RestoreIdentity(tok)
	rows, err := h.Query(ctx, db, q)
	if err != nil {
		return nil, classify("query", err)
	}
	return rows, nil
}

func (c *Coordinator) prepare(ctx context.Context, uri string) (*callState, Handler, error) {
	st, err := requireState(ctx)
	if err != nil {
		return nil, nil, err
	}
	h, err := c.resolver.Resolve(uri)
	if err != nil {
		return nil, nil, err
	}
	return st, h, nil
}

func (c *Coordinator) insert(ctx context.Context, st *callState, tx *txState, h Handler, uri string, values record.Values) (string, error) {
	c.stats.begin(st, statInsert)
	defer c.stats.finish(st)

	clean, err := h.Verify(ctx, OpInsert, Request{URI: uri, Values: values})
	if err != nil {
		return "", err
	}
	out, err := h.InsertInTx(ctx, tx.tx, uri, clean)
	if err != nil {
		return "", classify("insert", err)
	}
	if out != "" {
		tx.touch(h.NotifyURI(uri))
	}
	return out, nil
}

func (c *Coordinator) update(ctx context.Context, st *callState, tx *txState, h Handler, req Request) (int64, error) {
	c.stats.begin(st, statUpdate)
	defer c.stats.finish(st)

	clean, err := h.Verify(ctx, OpUpdate, req)
	if err != nil {
		return 0, err
	}
	n, err := h.UpdateInTx(ctx, tx.tx, req.URI, clean)
	if err != nil {
		return 0, classify("update", err)
	}
	if n > 0 {
		tx.touch(h.NotifyURI(req.URI))
	}
	return n, nil
}

func (c *Coordinator) delete(ctx context.Context, st *callState, tx *txState, h Handler, req Request) (int64, error) {
	c.stats.begin(st, statDelete)
	defer c.stats.finish(st)

	if _, err := h.Verify(ctx, OpDelete, req); err != nil {
		return 0, err
	}
	n, err := h.DeleteInTx(ctx, tx.tx, req.URI)
	if err != nil {
		return 0, classify("delete", err)
	}
	if n > 0 {
		tx.touch(h.NotifyURI(req.URI))
	}
	return n, nil
}
