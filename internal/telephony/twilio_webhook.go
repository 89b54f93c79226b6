package telephony

import (
	"net/http"
	"strconv"
	"strings"

	"wrapdesk/internal/calls"
	"wrapdesk/internal/messages"
)

// Twilio posts application/x-www-form-urlencoded bodies. The parent call SID
// and caller for follow-up callbacks travel in the query string of the URLs
// we hand out, so every callback is keyed by the inbound call.

type IncomingCallForm struct {
	CallSid string
	From    string
	To      string
}

func ParseIncomingCall(r *http.Request) (IncomingCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return IncomingCallForm{}, err
	}
	return IncomingCallForm{
		CallSid: strings.TrimSpace(r.PostFormValue("CallSid")),
		From:    strings.TrimSpace(r.PostFormValue("From")),
		To:      strings.TrimSpace(r.PostFormValue("To")),
	}, nil
}

func (f IncomingCallForm) Incoming() calls.Incoming {
	return calls.Incoming{CallSID: f.CallSid, From: f.From, To: f.To}
}

// LegStatusForm is the statusCallback of one dialed <Number>.
type LegStatusForm struct {
	ParentSID  string
	CallStatus string
	To         string
	Duration   int
}

func ParseLegStatus(r *http.Request) (LegStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return LegStatusForm{}, err
	}
	parent := r.URL.Query().Get("call_sid")
	if parent == "" {
		parent = r.PostFormValue("ParentCallSid")
	}
	return LegStatusForm{
		ParentSID:  strings.TrimSpace(parent),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Duration:   atoi(r.PostFormValue("CallDuration")),
	}, nil
}

func (f LegStatusForm) Event() calls.LegEvent {
	status := calls.LegOther
	switch f.CallStatus {
	case "in-progress", "answered":
		status = calls.LegAnswered
	case "completed":
		status = calls.LegCompleted
	}
	return calls.LegEvent{CallSID: f.ParentSID, Status: status, Number: f.To, Duration: f.Duration}
}

// DialCompleteForm is the <Dial action> callback after the fan-out resolves.
type DialCompleteForm struct {
	CallSID        string
	DialCallStatus string
	Duration       int
	RecordingURL   string
}

func ParseDialComplete(r *http.Request) (DialCompleteForm, error) {
	if err := r.ParseForm(); err != nil {
		return DialCompleteForm{}, err
	}
	sid := r.URL.Query().Get("call_sid")
	if sid == "" {
		sid = r.PostFormValue("CallSid")
	}
	return DialCompleteForm{
		CallSID:        strings.TrimSpace(sid),
		DialCallStatus: strings.TrimSpace(r.PostFormValue("DialCallStatus")),
		Duration:       atoi(r.PostFormValue("DialCallDuration")),
		RecordingURL:   strings.TrimSpace(r.PostFormValue("RecordingUrl")),
	}, nil
}

func (f DialCompleteForm) Outcome() calls.DialOutcome {
	return calls.DialOutcome{CallSID: f.CallSID, Status: f.DialCallStatus, Duration: f.Duration, RecordingURL: f.RecordingURL}
}

// VoicemailForm serves both the <Record action> and transcribeCallback posts.
type VoicemailForm struct {
	CallSID       string
	From          string
	RecordingURL  string
	Duration      int
	Transcription string
}

func ParseVoicemail(r *http.Request) (VoicemailForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoicemailForm{}, err
	}
	q := r.URL.Query()
	sid := q.Get("call_sid")
	if sid == "" {
		sid = r.PostFormValue("CallSid")
	}
	from := q.Get("from")
	if from == "" {
		from = r.PostFormValue("From")
	}
	text := r.PostFormValue("TranscriptionText")
	if st := r.PostFormValue("TranscriptionStatus"); st != "" && st != "completed" {
		text = ""
	}
	return VoicemailForm{
		CallSID:       strings.TrimSpace(sid),
		From:          strings.TrimSpace(from),
		RecordingURL:  strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		Duration:      atoi(r.PostFormValue("RecordingDuration")),
		Transcription: strings.TrimSpace(text),
	}, nil
}

func (f VoicemailForm) Event() calls.VoicemailEvent {
	return calls.VoicemailEvent{CallSID: f.CallSID, From: f.From, RecordingURL: f.RecordingURL, Duration: f.Duration, Transcription: f.Transcription}
}

type InboundSMSForm struct {
	MessageSid string
	From       string
	Body       string
	MediaURLs  []string
}

func ParseInboundSMS(r *http.Request) (InboundSMSForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundSMSForm{}, err
	}
	f := InboundSMSForm{
		MessageSid: strings.TrimSpace(r.PostFormValue("MessageSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		Body:       r.PostFormValue("Body"),
	}
	n := atoi(r.PostFormValue("NumMedia"))
	for i := 0; i < n; i++ {
		if u := strings.TrimSpace(r.PostFormValue("MediaUrl" + strconv.Itoa(i))); u != "" {
			f.MediaURLs = append(f.MediaURLs, u)
		}
	}
	return f, nil
}

func (f InboundSMSForm) Inbound() messages.Inbound {
	return messages.Inbound{From: f.From, Body: f.Body, MediaURLs: f.MediaURLs, ProviderID: f.MessageSid}
}

// atoi treats missing or garbage numbers as zero; Twilio omits durations
// for calls that never connected.
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
