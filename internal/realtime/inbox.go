package realtime

import (
	"sort"
	"sync"
)

// SeqFilter drops events that are not newer than the last one seen for
// their key. Duplicate deliveries share a sequence, so re-applying is a no-op.
type SeqFilter struct {
	last map[string]int64
}

func NewSeqFilter() *SeqFilter {
	return &SeqFilter{last: map[string]int64{}}
}

// Accept reports whether ev advances its key and records it if so.
func (f *SeqFilter) Accept(ev Event) bool {
	if ev.Seq <= f.last[ev.Key] {
		return false
	}
	f.last[ev.Key] = ev.Seq
	return true
}

// Inbox is the dashboard-side reducer: a keyed upsert of the latest payload
// per record, safe to apply the same event any number of times. The Hub keeps
// a bounded one so reconnecting streams can replay current state.
type Inbox struct {
	mu      sync.Mutex
	filter  *SeqFilter
	records map[string]Event
	limit   int
}

func NewInbox() *Inbox {
	return &Inbox{filter: NewSeqFilter(), records: map[string]Event{}}
}

// NewBoundedInbox keeps at most limit records, evicting the one with the
// oldest event first.
func NewBoundedInbox(limit int) *Inbox {
	in := NewInbox()
	in.limit = limit
	return in
}

func recordKey(kind Kind, ref string) string { return string(kind) + "/" + ref }

// Apply upserts ev and reports whether state changed.
func (i *Inbox) Apply(ev Event) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.filter.Accept(ev) {
		return false
	}
	i.records[recordKey(ev.Kind, ev.Ref)] = ev
	if i.limit > 0 && len(i.records) > i.limit {
		i.evictOldestLocked()
	}
	return true
}

func (i *Inbox) evictOldestLocked() {
	var (
		oldestKey string
		oldest    Event
	)
	for k, ev := range i.records {
		if oldestKey == "" || before(ev, oldest) {
			oldestKey, oldest = k, ev
		}
	}
	delete(i.records, oldestKey)
}

func before(a, b Event) bool {
	if a.At.Equal(b.At) {
		return a.ID < b.ID
	}
	return a.At.Before(b.At)
}

// Snapshot lists every record, oldest event first.
func (i *Inbox) Snapshot() []Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Event, 0, len(i.records))
	for _, ev := range i.records {
		out = append(out, ev)
	}
	sort.Slice(out, func(a, b int) bool { return before(out[a], out[b]) })
	return out
}

func (i *Inbox) Get(kind Kind, ref string) (Event, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ev, ok := i.records[recordKey(kind, ref)]
	return ev, ok
}

// Records lists the current records of one kind, oldest event first.
func (i *Inbox) Records(kind Kind) []Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Event, 0, len(i.records))
	for _, ev := range i.records {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(a, b int) bool { return before(out[a], out[b]) })
	return out
}
