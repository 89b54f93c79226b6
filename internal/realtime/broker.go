package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"wrapdesk/pkg/utils"
)

// publishScript assigns the next sequence for a key and appends the event to
// the shared stream in one atomic step, so stream order matches sequence
// order for every key.
//
// KEYS[1] = stream, KEYS[2] = per-key sequence counter
// ARGV[1] = maxlen, ARGV[2] = id, ARGV[3] = kind, ARGV[4] = key,
// ARGV[5] = ref, ARGV[6] = payload, ARGV[7] = at (unix ms)
var publishScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[2])
redis.call('XADD', KEYS[1], 'MAXLEN', ARGV[1], '*',
  'id', ARGV[2], 'kind', ARGV[3], 'key', ARGV[4], 'ref', ARGV[5],
  'seq', seq, 'payload', ARGV[6], 'at', ARGV[7])
return seq
`)

type BrokerConfig struct {
	Stream string
	MaxLen int64

	// Block bounds each XREAD so the loop notices cancellation.
	Block time.Duration
	// StartID is where the consumer begins; "$" means only new entries.
	StartID string
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	out := c
	if out.Stream == "" {
		out.Stream = "wrapdesk:events"
	}
	if out.MaxLen <= 0 {
		out.MaxLen = 10000
	}
	if out.Block <= 0 {
		out.Block = 5 * time.Second
	}
	if out.StartID == "" {
		out.StartID = "$"
	}
	return out
}

// RedisBroker publishes through a Redis stream shared by every API instance
// and feeds what it reads back into the local Hub.
type RedisBroker struct {
	rdb *redis.Client
	hub *Hub
	cfg BrokerConfig
	log *slog.Logger
	now func() time.Time
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, cfg BrokerConfig, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, hub: hub, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

func (b *RedisBroker) seqKey(key string) string {
	return b.cfg.Stream + ":seq:" + key
}

func (b *RedisBroker) Publish(ctx context.Context, kind Kind, key, ref string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := b.now().UTC()
	_, err = publishScript.Run(ctx, b.rdb,
		[]string{b.cfg.Stream, b.seqKey(key)},
		b.cfg.MaxLen, utils.NewULID(now), string(kind), key, ref, string(raw), now.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("realtime publish: %w", err)
	}
	return nil
}

// Run consumes the stream until ctx is cancelled. Read errors are retried
// with exponential backoff; entries are dispatched in stream order.
func (b *RedisBroker) Run(ctx context.Context) error {
	lastID := b.cfg.StartID

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := b.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.cfg.Stream, lastID},
			Count:   100,
			Block:   b.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := policy.NextBackOff()
			b.log.Warn("realtime stream read failed", "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		policy.Reset()

		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				ev, err := decodeEntry(msg.Values)
				if err != nil {
					b.log.Error("realtime stream entry malformed", "id", msg.ID, "err", err)
					continue
				}
				b.hub.Dispatch(ev)
			}
		}
	}
}

func decodeEntry(v map[string]any) (Event, error) {
	str := func(k string) string {
		s, _ := v[k].(string)
		return s
	}
	seq, err := strconv.ParseInt(str("seq"), 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("seq: %w", err)
	}
	atMs, err := strconv.ParseInt(str("at"), 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("at: %w", err)
	}
	ev := Event{
		ID:   str("id"),
		Kind: Kind(str("kind")),
		Key:  str("key"),
		Ref:  str("ref"),
		Seq:  seq,
		At:   time.UnixMilli(atMs).UTC(),
	}
	if p := str("payload"); p != "" {
		ev.Payload = json.RawMessage(p)
	}
	if ev.ID == "" || ev.Kind == "" {
		return Event{}, errors.New("missing id or kind")
	}
	return ev, nil
}
