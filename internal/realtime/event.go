// Package realtime pushes freshly persisted calls and messages to connected
// dashboard sessions.
//
// Delivery is at-least-once. Within one key (a call SID or a conversation's
// phone key) events carry a strictly increasing Seq and reach each subscriber
// in that order; nothing is promised across keys.
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	KindCall         Kind = "call"
	KindMessage      Kind = "message"
	KindConversation Kind = "conversation"
)

type Event struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Key scopes ordering: call SID for calls, grouping key for conversations.
	Key string `json:"key"`
	// Ref identifies the record the payload describes (message id, call SID).
	Ref string `json:"ref"`
	Seq int64  `json:"seq"`

	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Publisher is what domain services depend on.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, key, ref string, payload any) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Kind, string, string, any) error { return nil }
