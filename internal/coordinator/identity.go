package coordinator

import (
	"context"
	"sync/atomic"
	"time"
)

// Self is the effective identity while the store acts on its own behalf.
const Self = "self"

type callKey struct{}

// callState is the per-request identity and bookkeeping. It travels in the
// request's context and must not be shared between goroutines.
type callState struct {
	caller string

	// cleared counts nested ClearIdentity calls.
	cleared atomic.Int32

	// nest and start time the outermost operation for stats.
	nest  int
	start time.Time

	// tx is set while a transaction is open for this request.
	tx *txState
}

// WithCaller returns a context identifying caller as the origin of every
// operation run with it.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callKey{}, &callState{caller: caller})
}

// Caller returns the caller ctx was created for. It stays available while
// the identity is cleared.
func Caller(ctx context.Context) string {
	if st := stateFrom(ctx); st != nil {
		return st.caller
	}
	return ""
}

// Effective returns the identity storage access currently runs as: Self
// while cleared, the caller otherwise.
func Effective(ctx context.Context) string {
	st := stateFrom(ctx)
	if st == nil {
		return ""
	}
	if st.cleared.Load() > 0 {
		return Self
	}
	return st.caller
}

// InBatch reports whether ctx belongs to an open transaction.
func InBatch(ctx context.Context) bool {
	st := stateFrom(ctx)
	return st != nil && st.tx != nil
}

// Token restores the identity cleared by ClearIdentity.
type Token struct {
	st *callState
}

// ClearIdentity switches the effective identity of ctx to Self. Calls
// nest; the caller is restored once every Token has been restored.
func ClearIdentity(ctx context.Context) Token {
	st := stateFrom(ctx)
	if st != nil {
		st.cleared.Add(1)
	}
	return Token{st: st}
}

// RestoreIdentity undoes one ClearIdentity.
func RestoreIdentity(t Token) {
	if t.st == nil {
		return
	}
	if t.st.cleared.Add(-1) < 0 {
		t.st.cleared.Store(0)
	}
}

func stateFrom(ctx context.Context) *callState {
	st, _ := ctx.Value(callKey{}).(*callState)
	return st
}

func requireState(ctx context.Context) (*callState, error) {
	st := stateFrom(ctx)
	if st == nil || st.caller == "" {
		return nil, &Error{Code: ErrCodeNoCaller, Message: "request has no caller identity"}
	}
	return st, nil
}
