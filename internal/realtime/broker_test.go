package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wrapdesk/pkg/logger"
)

func setupBroker(t *testing.T) (*miniredis.Miniredis, *goredis.Client, *Hub, *RedisBroker) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub(16, logger.Discard())
	b := NewRedisBroker(rdb, hub, BrokerConfig{
		Stream:  "test:events",
		MaxLen:  100,
		Block:   50 * time.Millisecond,
		StartID: "0-0",
	}, logger.Discard())
	return mr, rdb, hub, b
}

func TestRedisBroker_PublishAssignsPerKeySequence(t *testing.T) {
	_, rdb, _, b := setupBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, KindMessage, "2405551234", "m1", map[string]string{"body": "a"}))
	require.NoError(t, b.Publish(ctx, KindMessage, "2405551234", "m2", map[string]string{"body": "b"}))
	require.NoError(t, b.Publish(ctx, KindCall, "CA1", "CA1", map[string]string{"status": "ringing"}))

	entries, err := rdb.XRange(ctx, "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "1", entries[0].Values["seq"])
	assert.Equal(t, "2", entries[1].Values["seq"])
	assert.Equal(t, "1", entries[2].Values["seq"])
	assert.Equal(t, "m2", entries[1].Values["ref"])
}

func TestRedisBroker_RunDispatchesInStreamOrder(t *testing.T) {
	_, _, hub, b := setupBroker(t)
	sub := hub.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, ref := range []string{"m1", "m2", "m3"} {
		require.NoError(t, b.Publish(ctx, KindMessage, "2405551234", ref, map[string]string{"ref": ref}))
	}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	for i, want := range []string{"m1", "m2", "m3"} {
		select {
		case ev := <-sub.C:
			assert.Equal(t, want, ev.Ref)
			assert.Equal(t, int64(i+1), ev.Seq)
			assert.Equal(t, KindMessage, ev.Kind)
			assert.JSONEq(t, `{"ref":"`+want+`"}`, string(ev.Payload))
		case <-time.After(2 * time.Second):
			t.Fatalf("event %s not received", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not stop")
	}
}

func TestDecodeEntry_RejectsMalformed(t *testing.T) {
	_, err := decodeEntry(map[string]any{"seq": "x", "at": "1"})
	require.Error(t, err)
	_, err = decodeEntry(map[string]any{"seq": "1", "at": "1"})
	require.Error(t, err)
}
