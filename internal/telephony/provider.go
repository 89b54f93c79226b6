package telephony

import (
	"context"

	"wrapdesk/internal/calls"
	"wrapdesk/internal/contacts"
	"wrapdesk/internal/messages"
	"wrapdesk/internal/routing"
)

// The webhook adapters translate Twilio's boundary into these calls and
// render the answer. Decisions are made behind them, never here.

type CallFlow interface {
	HandleIncoming(ctx context.Context, in calls.Incoming) (routing.Decision, error)
	HandleLegStatus(ctx context.Context, ev calls.LegEvent) (calls.Result, error)
	HandleDialComplete(ctx context.Context, d calls.DialOutcome) (calls.DialResult, error)
	HandleVoicemail(ctx context.Context, v calls.VoicemailEvent) (calls.Result, error)
	HandleTranscription(ctx context.Context, v calls.VoicemailEvent) (calls.Result, error)
}

type InboundMessages interface {
	RecordInbound(ctx context.Context, in messages.Inbound) (messages.Message, error)
}

type CallerLookup interface {
	Lookup(ctx context.Context, raw string) (contacts.Identity, bool, error)
}
