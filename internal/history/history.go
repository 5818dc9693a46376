// Package history holds the append-only allocation history log. The log is
// the only state shared across optimization runs: entries are appended
// under a single mutex, never mutated, and handed out as copies.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindGlobalAllocation = "global_allocation"
)

// Entry is one recorded allocation decision.
type Entry struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id,omitempty"`
	Kind             string    `json:"kind"`
	RecordedAt       time.Time `json:"recorded_at"`
	UserCount        int       `json:"user_count"`
	AllocationVector []float64 `json:"allocation_vector"`
	FinalCost        float64   `json:"final_cost"`
	Converged        bool      `json:"converged"`
	Iterations       int       `json:"iterations"`
}

func (e Entry) clone() Entry {
	e.AllocationVector = append([]float64(nil), e.AllocationVector...)
	return e
}

// Sink persists entries outside the process. Write is called with the log
// lock held, so sinks observe entries in append order.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Option configures a Log.
type Option func(*Log)

// WithSink mirrors every appended entry to s.
func WithSink(s Sink) Option { return func(l *Log) { l.sink = s } }

// WithClock overrides time.Now for RecordedAt.
func WithClock(now func() time.Time) Option { return func(l *Log) { l.now = now } }

// WithAppendHook is called after each append with the new log length.
func WithAppendHook(fn func(e Entry, total int)) Option { return func(l *Log) { l.hook = fn } }

// Log is a mutex-guarded append-only buffer of entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	sink    Sink
	now     func() time.Time
	hook    func(Entry, int)
}

// NewLog creates an empty log.
func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append assigns ID and RecordedAt when unset, stores a copy of e, and
// mirrors it to the sink. The entry is kept in memory even if the sink
// fails; the sink error is returned wrapped.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	e = e.clone()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e.RecordedAt.IsZero() {
		e.RecordedAt = l.now().UTC()
	}
	l.entries = append(l.entries, e)
	if l.hook != nil {
		l.hook(e.clone(), len(l.entries))
	}
	if l.sink != nil {
		if err := l.sink.Write(ctx, e.clone()); err != nil {
			return e.clone(), fmt.Errorf("persist history entry %s: %w", e.ID, err)
		}
	}
	return e.clone(), nil
}

// Entries returns a copy of every entry in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
