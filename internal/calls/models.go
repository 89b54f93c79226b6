package calls

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Call is one inbound telephony session, keyed by the carrier's call SID.
//
// State is a tagged variant: each concrete state carries only the fields
// that are valid in it, so an answered_by on a missed call cannot exist.
type Call struct {
	SID       string    `json:"call_sid"`
	Direction Direction `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	State     State     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Status string

const (
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusMissed     Status = "missed"
	StatusVoicemail  Status = "voicemail"
)

// Terminal reports whether no webhook may move a call out of s.
// Missed is not terminal: voicemail may still follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusVoicemail
}

type State interface {
	Status() Status
	isState()
}

type Ringing struct{}

type InProgress struct {
	AnsweredBy string
}

type Completed struct {
	AnsweredBy   string
	Duration     int
	RecordingURL string
}

type Missed struct{}

type Voicemail struct {
	Duration      int
	VoicemailURL  string
	Transcription string
}

func (Ringing) Status() Status    { return StatusRinging }
func (InProgress) Status() Status { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }
func (Missed) Status() Status     { return StatusMissed }
func (Voicemail) Status() Status  { return StatusVoicemail }

func (Ringing) isState()    {}
func (InProgress) isState() {}
func (Completed) isState()  {}
func (Missed) isState()     {}
func (Voicemail) isState()  {}

// Status of the call; a call without a state is ringing.
func (c Call) Status() Status {
	if c.State == nil {
		return StatusRinging
	}
	return c.State.Status()
}

// AnsweredBy is set only in states reached through an answered leg.
func (c Call) AnsweredBy() string {
	switch s := c.State.(type) {
	case InProgress:
		return s.AnsweredBy
	case Completed:
		return s.AnsweredBy
	}
	return ""
}

// Duration in seconds, for states that have one.
func (c Call) Duration() int {
	switch s := c.State.(type) {
	case Completed:
		return s.Duration
	case Voicemail:
		return s.Duration
	}
	return 0
}

// Record is the flat, column-shaped view of a call used for storage and the
// dashboard call list.
type Record struct {
	SID           string    `json:"call_sid"`
	Direction     Direction `json:"direction"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Status        Status    `json:"status"`
	AnsweredBy    string    `json:"answered_by,omitempty"`
	Duration      int       `json:"duration"`
	RecordingURL  string    `json:"recording_url,omitempty"`
	VoicemailURL  string    `json:"voicemail_url,omitempty"`
	Transcription string    `json:"transcription,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var ErrUnknownStatus = errors.New("calls: unknown status")

func (c Call) Record() Record {
	r := Record{
		SID:       c.SID,
		Direction: c.Direction,
		From:      c.From,
		To:        c.To,
		Status:    c.Status(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	switch s := c.State.(type) {
	case InProgress:
		r.AnsweredBy = s.AnsweredBy
	case Completed:
		r.AnsweredBy = s.AnsweredBy
		r.Duration = s.Duration
		r.RecordingURL = s.RecordingURL
	case Voicemail:
		r.Duration = s.Duration
		r.VoicemailURL = s.VoicemailURL
		r.Transcription = s.Transcription
	}
	return r
}

// Call rebuilds the variant, discarding columns that are not valid for the
// stored status.
func (r Record) Call() (Call, error) {
	c := Call{
		SID:       r.SID,
		Direction: r.Direction,
		From:      r.From,
		To:        r.To,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	switch r.Status {
	case StatusRinging:
		c.State = Ringing{}
	case StatusInProgress:
		c.State = InProgress{AnsweredBy: r.AnsweredBy}
	case StatusCompleted:
		c.State = Completed{AnsweredBy: r.AnsweredBy, Duration: r.Duration, RecordingURL: r.RecordingURL}
	case StatusMissed:
		c.State = Missed{}
	case StatusVoicemail:
		c.State = Voicemail{Duration: r.Duration, VoicemailURL: r.VoicemailURL, Transcription: r.Transcription}
	default:
		return Call{}, fmt.Errorf("%w: %q", ErrUnknownStatus, r.Status)
	}
	return c, nil
}

func (c Call) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Record())
}
