package routing

import "time"

// Decision is the provider-agnostic output of the routing engine.
//
// It carries only what the provider adapter (the TwiML builder) needs to
// execute the fan-out. No provider-specific fields belong here.
type Decision struct {
	CallSID string `json:"call_sid"`

	Action  Action   `json:"action"`
	Targets []Target `json:"targets,omitempty"`

	// RingTimeout bounds how long every target rings before the fan-out
	// resolves as unanswered.
	RingTimeout time.Duration `json:"ring_timeout"`

	// Reason is optional and intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Target struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Action string

const (
	ActionDial   Action = "dial"
	ActionReject Action = "reject"
)

const ReasonNoTeamPhones = "no_team_phones"
