package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/roach88/healthstore/internal/access"
	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/healthstore"
	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/testutil"
)

// StepInterval is how far the clock moves between steps.
const StepInterval = time.Minute

// Harness is the test execution engine.
// It runs scenario steps against one store with a deterministic clock and
// transaction ids.
type Harness struct {
	hs        *healthstore.HealthStore
	clock     *testutil.ManualClock
	authority string
	changes   []string
}

type options struct {
	dataDir string
	logger  *slog.Logger
}

// Option configures Run.
type Option func(*options)

// WithDataDir runs the scenario in dir instead of a temporary directory.
// The directory should be empty.
func WithDataDir(dir string) Option {
	return func(o *options) { o.dataDir = dir }
}

// WithLogger sets the store logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh store. Execution errors of steps are
// recorded in the trace; the returned error is only set when the store
// cannot be opened.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dataDir == "" {
		dir, err := os.MkdirTemp("", "healthstore-scenario-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		defer os.RemoveAll(dir)
		o.dataDir = dir
	}

	clock := testutil.NewManualClock()
	hs, err := healthstore.Open(ctx, healthstore.Config{
		DataDir:     o.dataDir,
		Facility:    keystore.NewMemoryFacility(),
		Preferences: keystore.NewMemoryPreferences(),
		Logger:      o.logger,
		Clock:       clock,
		IDs:         testutil.NewSequentialIDs("tx"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer hs.Close()

	h := &Harness{hs: hs, clock: clock, authority: hs.Router().Authority()}
	cancel := hs.Subscribe(func(c coordinator.Change) {
		h.changes = append(h.changes, h.relative(c.URI))
	})
	defer cancel()

	result := NewResult()
	for i, step := range scenario.Steps {
		h.changes = nil
		event := h.execute(ctx, i+1, step)
		event.Changes = h.changes
		result.Trace = append(result.Trace, event)

		for _, err := range checkExpect(event, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %v", event.Step, step.Op, err))
		}
		clock.Advance(StepInterval)
	}
	return result, nil
}

// address returns the absolute address of a relative one.
func (h *Harness) address(uri string) string {
	if uri == "" || strings.HasPrefix(uri, h.authority+"/") || uri == h.authority {
		return uri
	}
	return h.authority + "/" + strings.TrimPrefix(uri, "/")
}

// relative strips the authority from an address.
func (h *Harness) relative(uri string) string {
	return strings.TrimPrefix(strings.TrimPrefix(uri, h.authority), "/")
}

// execute runs one step and records its outcome.
func (h *Harness) execute(ctx context.Context, n int, step Step) TraceEvent {
	as := step.As
	if as == "" {
		as = h.hs.Owner()
	}
	ctx = coordinator.WithCaller(ctx, as)

	event := TraceEvent{Step: n, As: as, Op: step.Op, URI: step.URI, Outcome: OutcomeOK}
	result, denied, err := h.dispatch(ctx, step)
	switch {
	case err != nil:
		event.Outcome = OutcomeError
		event.Error = healthstore.ErrorCode(err)
		event.err = err
	case denied:
		event.Outcome = OutcomeDenied
		event.Result = result
	default:
		event.Result = result
	}
	return event
}

func (h *Harness) dispatch(ctx context.Context, step Step) (map[string]any, bool, error) {
	uri := h.address(step.URI)
	switch step.Op {
	case OpInsert:
		return h.insert(ctx, uri, record.Values(step.Values))

	case OpUpdate:
		n, err := h.hs.Update(ctx, uri, record.Values(step.Values), step.Where, step.Args)
		return countResult(n), n == coordinator.DeniedCount, err

	case OpDelete:
		n, err := h.hs.Delete(ctx, uri, step.Where, step.Args)
		return countResult(n), n == coordinator.DeniedCount, err

	case OpBulk:
		rows := make([]record.Values, len(step.Rows))
		for i, r := range step.Rows {
			rows[i] = record.Values(r)
		}
		n, err := h.hs.BulkInsert(ctx, uri, rows)
		return countResult(n), false, err

	case OpQuery:
		rows, err := h.hs.Query(ctx, coordinator.QueryRequest{
			URI:        uri,
			Projection: step.Projection,
			Where:      step.Where,
			Args:       step.Args,
			SortOrder:  step.Sort,
		})
		if err != nil {
			return nil, false, err
		}
		out := make([]any, rows.Len())
		for i, r := range rows.Records() {
			out[i] = map[string]any(r)
		}
		return map[string]any{"count": int64(rows.Len()), "rows": out}, false, nil

	case OpGrant:
		return h.grant(ctx, step)

	case OpBatch:
		return h.batch(ctx, step.Operations)

	case OpProfileSet:
		return h.insert(ctx, h.hs.Router().ProfileURI(), record.Values(step.Values))

	case OpProfileReset:
		n, err := h.hs.Delete(ctx, h.hs.Router().ProfileURI(), "", nil)
		return countResult(n), n == coordinator.DeniedCount, err

	case OpProfileGet:
		p, err := h.hs.Profile(ctx)
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"profile": map[string]any(p)}, false, nil
	}
	return nil, false, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) insert(ctx context.Context, uri string, values record.Values) (map[string]any, bool, error) {
	out, err := h.hs.Insert(ctx, uri, values)
	if err != nil {
		return nil, false, err
	}
	return map[string]any{"uri": h.relative(out)}, out == "", nil
}

func (h *Harness) grant(ctx context.Context, step Step) (map[string]any, bool, error) {
	metric, err := record.ParseMetric(step.Metric)
	if err != nil {
		return nil, false, fmt.Errorf("grant: %w", err)
	}
	perm, err := access.ParsePermission(step.Permission)
	if err != nil {
		return nil, false, fmt.Errorf("grant: %w", err)
	}
	entry := access.Entry{Caller: step.Caller, Metric: metric, Permission: perm}
	return h.insert(ctx, h.hs.Router().AccessURI("", record.Unknown), entry.Values())
}

func (h *Harness) batch(ctx context.Context, ops []coordinator.Operation) (map[string]any, bool, error) {
	abs := make([]coordinator.Operation, len(ops))
	for i, op := range ops {
		op.URI = h.address(op.URI)
		abs[i] = op
	}
	results, err := h.hs.ApplyBatch(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		if abs[i].Kind == coordinator.OpInsert {
			out[i] = map[string]any{"uri": h.relative(r.URI)}
		} else {
			out[i] = countResult(r.Count)
		}
	}
	return map[string]any{"results": out}, false, nil
}

func countResult(n int64) map[string]any {
	return map[string]any{"count": n}
}
