package messages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wrapdesk/internal/phone"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Kind string

const (
	KindSMS       Kind = "sms"
	KindVoicemail Kind = "voicemail"
)

type Status string

const (
	StatusReceived Status = "received"
	StatusQueued   Status = "queued"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

// Message is one SMS/MMS event. CustomerPhone is stored exactly as the
// carrier or the user supplied it; grouping normalizes at read time.
// Only Read and Archived change after insert, plus the delivery fields of an
// outbound send.
type Message struct {
	ID            string    `json:"id"`
	Direction     Direction `json:"direction"`
	Kind          Kind      `json:"kind"`
	CustomerPhone string    `json:"customer_phone"`
	Body          string    `json:"body"`
	MediaURLs     []string  `json:"media_urls,omitempty"`
	Status        Status    `json:"status"`
	ProviderID    string    `json:"provider_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Read          bool      `json:"read"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"created_at"`
}

func (m Message) Key() phone.Key { return phone.Normalize(m.CustomerPhone) }

// CountsUnread reports whether m contributes to a conversation's unread count.
func (m Message) CountsUnread() bool {
	return m.Direction == DirectionInbound && !m.Read && !m.Archived
}

// Thread selects the stored messages of one conversation: every spelling of
// a matchable key, or the one exact spelling of an unmatchable number.
type Thread struct {
	Key phone.Key
	Raw string
}

// ThreadOf accepts a phone in any spelling or a conversation group key.
func ThreadOf(raw string) (Thread, error) {
	if key := phone.Normalize(raw); key.Matchable() {
		return Thread{Key: key}, nil
	}
	spelling := phone.RawSpelling(raw)
	if spelling == "" {
		return Thread{}, ErrInvalidPhone
	}
	return Thread{Raw: spelling}, nil
}

func (t Thread) matches(m Message) bool {
	if t.Key.Matchable() {
		return m.Key() == t.Key
	}
	return !m.Key().Matchable() && strings.TrimSpace(m.CustomerPhone) == t.Raw
}

// GroupKey is the conversation this thread renders as.
func (t Thread) GroupKey() string {
	if t.Key.Matchable() {
		return t.Key.String()
	}
	return "raw:" + t.Raw
}

var (
	ErrNotFound     = errors.New("messages: message not found")
	ErrInvalidPhone = errors.New("messages: phone number is not a 10-digit number")
	ErrEmptyMessage = errors.New("messages: body or media is required")
)

// ProviderError is a failed send as reported by the SMS provider. The local
// message is left failed, never sent.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return "sms provider: " + e.Message
	}
	return fmt.Sprintf("sms provider: %d %s", e.StatusCode, e.Message)
}
