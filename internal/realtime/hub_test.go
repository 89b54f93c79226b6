package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"wrapdesk/pkg/logger"
)

func TestHub_PerKeyOrderUnderConcurrentPublishers(t *testing.T) {
	h := NewHub(1024, logger.Discard())
	sub := h.Subscribe()
	defer sub.Close()

	keys := []string{"2405551234", "3015550000", "CA1"}
	const perKey = 50

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			for i := 0; i < perKey; i++ {
				if err := h.Publish(context.Background(), KindMessage, k, fmt.Sprintf("%s-%d", k, i), map[string]int{"i": i}); err != nil {
					t.Errorf("publish: %v", err)
				}
			}
		}(k)
	}
	wg.Wait()

	last := map[string]int64{}
	for n := 0; n < len(keys)*perKey; n++ {
		ev := <-sub.C
		if ev.Seq != last[ev.Key]+1 {
			t.Fatalf("key %s: expected seq %d, got %d", ev.Key, last[ev.Key]+1, ev.Seq)
		}
		last[ev.Key] = ev.Seq
	}
	for _, k := range keys {
		if last[k] != perKey {
			t.Fatalf("key %s: expected %d events, got %d", k, perKey, last[k])
		}
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(1, logger.Discard())
	slow := h.Subscribe()
	fast := h.Subscribe()

	ctx := context.Background()
	_ = h.Publish(ctx, KindCall, "CA1", "CA1", nil)
	<-fast.C
	_ = h.Publish(ctx, KindCall, "CA1", "CA1", nil)

	if h.Subscribers() != 1 {
		t.Fatalf("expected slow subscriber dropped, have %d", h.Subscribers())
	}
	// drain buffered event, then the channel is closed
	<-slow.C
	if _, ok := <-slow.C; ok {
		t.Fatalf("expected closed channel")
	}
	if ev := <-fast.C; ev.Seq != 2 {
		t.Fatalf("fast subscriber expected seq 2, got %d", ev.Seq)
	}
	fast.Close()
	fast.Close()
}

func TestHub_DispatchKeepsSequence(t *testing.T) {
	h := NewHub(4, logger.Discard())
	sub := h.Subscribe()
	defer sub.Close()

	h.Dispatch(Event{ID: "a", Kind: KindCall, Key: "CA1", Seq: 7})
	_ = h.Publish(context.Background(), KindCall, "CA1", "CA1", nil)

	if ev := <-sub.C; ev.Seq != 7 {
		t.Fatalf("expected dispatched seq, got %d", ev.Seq)
	}
	if ev := <-sub.C; ev.Seq != 8 {
		t.Fatalf("expected local publish to continue after dispatched seq, got %d", ev.Seq)
	}
}

func TestHub_SnapshotHoldsLatestPerRecord(t *testing.T) {
	h := NewHub(8, logger.Discard())
	ctx := context.Background()
	_ = h.Publish(ctx, KindMessage, "2405551234", "m1", map[string]string{"status": "queued"})
	_ = h.Publish(ctx, KindMessage, "2405551234", "m1", map[string]string{"status": "sent"})
	_ = h.Publish(ctx, KindCall, "CA1", "CA1", map[string]string{"status": "ringing"})

	sub, snap := h.SubscribeWithSnapshot()
	defer sub.Close()
	if len(snap) != 2 {
		t.Fatalf("expected 2 records, got %d", len(snap))
	}
	if snap[0].Ref != "m1" || snap[0].Seq != 2 || string(snap[0].Payload) != `{"status":"sent"}` {
		t.Fatalf("unexpected message record %+v", snap[0])
	}

	_ = h.Publish(ctx, KindCall, "CA1", "CA1", map[string]string{"status": "in_progress"})
	if ev := <-sub.C; ev.Key != "CA1" || ev.Seq != 2 {
		t.Fatalf("unexpected live event %+v", ev)
	}
}
