package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
)

// txState is one physical transaction.
type txState struct {
	tx    *store.Tx
	id    string
	batch bool

	touched []string
	seen    map[string]bool
}

func (t *txState) touch(uri string) {
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	if !t.seen[uri] {
		t.seen[uri] = true
		t.touched = append(t.touched, uri)
	}
}

// inTx runs fn in the request's open transaction, or in a new one that is
// committed when fn succeeds and rolled back when it fails.
//
// Context cancellation is honored until BEGIN; after that the transaction
// runs to completion.
func (c *Coordinator) inTx(ctx context.Context, st *callState, batch bool, fn func(context.Context, *txState) error) error {
	if st.tx != nil {
		return fn(ctx, st.tx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	stx, err := c.db.BeginTx(ctx)
	if err != nil {
		return storageError("begin", err)
	}
	tx := &txState{tx: stx, id: c.ids.Generate(), batch: batch}
	defer stx.Rollback()

	if err := c.run(ctx, st, tx, fn); err != nil {
		if rbErr := stx.Rollback(); rbErr != nil {
			c.logger.Error("rollback failed", "tx", tx.id, "error", rbErr)
		}
		c.logger.Debug("transaction rolled back", "tx", tx.id, "caller", st.caller, "error", err)
		return err
	}
	if err := stx.Commit(); err != nil {
		return storageError("commit", err)
	}
	c.logger.Debug("transaction committed", "tx", tx.id, "caller", st.caller, "changes", len(tx.touched))
	c.notify(tx)
	return nil
}

// run executes fn with the transaction attached to st and the caller's
// identity cleared.
func (c *Coordinator) run(ctx context.Context, st *callState, tx *txState, fn func(context.Context, *txState) error) error {
	st.tx = tx
	tok := ClearIdentity(ctx)
	defer func() {
		RestoreIdentity(tok)
		st.tx = nil
	}()
	return fn(ctx, tx)
}

func (c *Coordinator) notify(tx *txState) {
	if len(tx.touched) == 0 {
		return
	}
	c.mu.RLock()
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Change), len(ids))
	for i, id := range ids {
		subs[i] = c.subscribers[id]
	}
	c.mu.RUnlock()

	for _, uri := range tx.touched {
		for _, fn := range subs {
			fn(Change{URI: uri, TxID: tx.id})
		}
	}
}

// Operation is one element of a batch.
type Operation struct {
	Kind   OpKind        `json:"op" yaml:"op"`
	URI    string        `json:"uri" yaml:"uri"`
	Values record.Values `json:"values,omitempty" yaml:"values,omitempty"`
	Where  string        `json:"where,omitempty" yaml:"where,omitempty"`
	Args   []any         `json:"args,omitempty" yaml:"args,omitempty"`

	// YieldAllowed lets other work run before this operation.
	YieldAllowed bool `json:"yield_allowed,omitempty" yaml:"yield_allowed,omitempty"`
}

// Result is the outcome of one batch operation: the new URI for inserts,
// the affected count for updates and deletes.
type Result struct {
	URI   string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Count int64  `json:"count" yaml:"count"`
}

// ApplyBatch applies ops in order in one transaction. Any failing operation
// rolls back the whole batch.
func (c *Coordinator) ApplyBatch(ctx context.Context, ops []Operation) ([]Result, error) {
	st, err := requireState(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return []Result{}, nil
	}
	c.stats.begin(st, statBatch)
	defer c.stats.finish(st)

	results := make([]Result, len(ops))
	err = c.inTx(ctx, st, true, func(ctx context.Context, tx *txState) error {
		for i, op := range ops {
			if i > 0 && op.YieldAllowed {
				c.yield()
			}
			res, err := c.apply(ctx, st, tx, op)
			if err != nil {
				return fmt.Errorf("batch operation %d (%s %s): %w", i, op.Kind, op.URI, err)
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Coordinator) apply(ctx context.Context, st *callState, tx *txState, op Operation) (Result, error) {
	h, err := c.resolver.Resolve(op.URI)
	if err != nil {
		return Result{}, err
	}
	switch op.Kind {
	case OpInsert:
		uri, err := c.insert(ctx, st, tx, h, op.URI, op.Values)
		return Result{URI: uri}, err
	case OpUpdate:
		n, err := c.update(ctx, st, tx, h, Request{URI: op.URI, Values: op.Values, Where: op.Where, Args: op.Args})
		return Result{Count: n}, err
	case OpDelete:
		n, err := c.delete(ctx, st, tx, h, Request{URI: op.URI, Where: op.Where, Args: op.Args})
		return Result{Count: n}, err
	}
	return Result{}, Unsupported(op.URI, op.Kind.String()+" is not a batch operation")
}
