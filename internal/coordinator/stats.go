package coordinator

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Counts is the activity of one caller.
type Counts struct {
	Query       int64
	Insert      int64
	Update      int64
	Delete      int64
	Batch       int64
	BatchInsert int64
	BatchUpdate int64
	BatchDelete int64

	// Duration is the wall time spent in outermost operations.
	Duration time.Duration
}

type statKind int

const (
	statQuery statKind = iota
	statInsert
	statUpdate
	statDelete
	statBatch
)

// minOperationTime is attributed to operations that finish within the
// clock's resolution.
const minOperationTime = time.Millisecond

// Stats tracks per-caller operation counts for diagnostics. It never gates
// or delays an operation.
type Stats struct {
	mu      sync.Mutex
	clock   Clock
	started time.Time
	callers map[string]*Counts
}

func newStats(clock Clock) *Stats {
	return &Stats{clock: clock, started: clock.Now(), callers: make(map[string]*Counts)}
}

// begin counts one operation of kind for the caller of st and starts timing
// if it is the outermost one.
func (s *Stats) begin(st *callState, kind statKind) {
	inBatch := st.tx != nil && st.tx.batch

	s.mu.Lock()
	c := s.callers[st.caller]
	if c == nil {
		c = &Counts{}
		s.callers[st.caller] = c
	}
	switch kind {
	case statQuery:
		c.Query++
	case statBatch:
		c.Batch++
	case statInsert:
		if inBatch {
			c.BatchInsert++
		} else {
			c.Insert++
		}
	case statUpdate:
		if inBatch {
			c.BatchUpdate++
		} else {
			c.Update++
		}
	case statDelete:
		if inBatch {
			c.BatchDelete++
		} else {
			c.Delete++
		}
	}
	s.mu.Unlock()

	st.nest++
	if st.nest == 1 {
		st.start = s.clock.Now()
	}
}

// finish ends one operation; the outermost one adds its duration.
func (s *Stats) finish(st *callState) {
	st.nest--
	if st.nest != 0 {
		return
	}
	d := s.clock.Now().Sub(st.start)
	if d < minOperationTime {
		d = minOperationTime
	}
	s.mu.Lock()
	s.callers[st.caller].Duration += d
	s.mu.Unlock()
}

// Snapshot returns a copy of the counts per caller.
func (s *Stats) Snapshot() map[string]Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counts, len(s.callers))
	for caller, c := range s.callers {
		out[caller] = *c
	}
	return out
}

// Dump writes the activity report, one line per caller in caller order.
// Every line after the uptime is prefixed with prefix.
func (s *Stats) Dump(w io.Writer, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(w)
	uptime := s.clock.Now().Sub(s.started)
	fmt.Fprintf(bw, "  Process uptime: %d minutes\n\n", int64(uptime/time.Minute))

	fmt.Fprintf(bw, "%sClient activities:\n", prefix)
	fmt.Fprintf(bw, "%s  Caller     Query  Insert Update Delete   Batch Insert Update Delete          Sec\n", prefix)

	callers := make([]string, 0, len(s.callers))
	for caller := range s.callers {
		callers = append(callers, caller)
	}
	sort.Strings(callers)
	for _, caller := range callers {
		c := s.callers[caller]
		fmt.Fprintf(bw, "%s  %-9s %6d  %6d %6d %6d  %6d %6d %6d %6d %12.3f\n",
			prefix, caller,
			c.Query, c.Insert, c.Update, c.Delete,
			c.Batch, c.BatchInsert, c.BatchUpdate, c.BatchDelete,
			c.Duration.Seconds())
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}
