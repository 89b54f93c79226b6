package routing

import (
	"sort"
	"time"

	"wrapdesk/internal/phone"
	"wrapdesk/internal/team"
)

const DefaultRingTimeout = 12 * time.Second

// Engine decides which team phones ring for an inbound call.
// It returns a decision only: no DB writes, no provider calls.
type Engine struct {
	RingTimeout time.Duration
}

func NewEngine(ringTimeout time.Duration) Engine {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return Engine{RingTimeout: ringTimeout}
}

// Plan rings every enabled phone in parallel, ordered by ring order.
// Disabled and unparseable numbers are skipped, and a number configured
// twice rings once.
func (e Engine) Plan(callSID string, phones []team.Phone) Decision {
	timeout := e.RingTimeout
	if timeout <= 0 {
		timeout = DefaultRingTimeout
	}

	candidates := make([]team.Phone, 0, len(phones))
	for _, p := range phones {
		if p.Enabled {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RingOrder < candidates[j].RingOrder
	})

	seen := make(map[phone.Key]struct{}, len(candidates))
	targets := make([]Target, 0, len(candidates))
	for _, p := range candidates {
		key := phone.Normalize(p.Number)
		if !key.Matchable() {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, Target{Name: p.Name, Number: key.E164()})
	}

	if len(targets) == 0 {
		return Decision{CallSID: callSID, Action: ActionReject, Reason: ReasonNoTeamPhones}
	}
	return Decision{CallSID: callSID, Action: ActionDial, Targets: targets, RingTimeout: timeout, Reason: "fan_out"}
}
