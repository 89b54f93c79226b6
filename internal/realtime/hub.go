package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"wrapdesk/internal/metrics"
	"wrapdesk/pkg/utils"
)

// Hub fans events out to in-process subscribers.
//
// Used alone it is a complete Publisher for a single instance. Behind a
// RedisBroker it only dispatches what the broker reads back from the shared
// stream.
//
// Dispatch holds the lock while it enqueues to every subscriber, so all
// subscribers observe the same order. Sends never block: a subscriber whose
// buffer is full is closed and must reconnect and reload.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seqs   map[string]int64
	buffer int
	recent *Inbox

	log *slog.Logger
	now func() time.Time
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	hub    *Hub
	closed bool
}

const recentRecords = 1000

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:   map[*Subscription]struct{}{},
		seqs:   map[string]int64{},
		buffer: buffer,
		recent: NewBoundedInbox(recentRecords),
		log:    log,
		now:    time.Now,
	}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return s
}

// SubscribeWithSnapshot subscribes and returns the latest event of each
// recently changed record. Nothing is dispatched between the two, so the
// snapshot and the channel together miss no event.
func (h *Hub) SubscribeWithSnapshot() (*Subscription, []Event) {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	snap := h.recent.Snapshot()
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return s, snap
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.dropLocked(s)
}

func (h *Hub) dropLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
	metrics.RealtimeSubscribers.Dec()
}

// Publish assigns the next per-key sequence locally and dispatches.
func (h *Hub) Publish(ctx context.Context, kind Kind, key, ref string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seqs[key]++
	h.dispatchLocked(Event{
		ID:      utils.NewULID(now),
		Kind:    kind,
		Key:     key,
		Ref:     ref,
		Seq:     h.seqs[key],
		Payload: raw,
		At:      now,
	})
	return nil
}

// Dispatch delivers an event that already carries its sequence.
func (h *Hub) Dispatch(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Seq > h.seqs[ev.Key] {
		h.seqs[ev.Key] = ev.Seq
	}
	h.dispatchLocked(ev)
}

func (h *Hub) dispatchLocked(ev Event) {
	metrics.RealtimeEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	h.recent.Apply(ev)
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.log.Warn("realtime subscriber too slow, disconnecting", "kind", ev.Kind, "key", ev.Key)
			metrics.RealtimeDroppedTotal.Inc()
			h.dropLocked(s)
		}
	}
}

// Subscribers reports the live subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
