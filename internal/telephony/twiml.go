package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"net/url"
	"strings"
	"time"

	"wrapdesk/internal/routing"
)

// TwiML is rendered with encoding/xml; only the verbs the call flow uses
// are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName        xml.Name      `xml:"Dial"`
	Timeout        int           `xml:"timeout,attr"`
	Action         string        `xml:"action,attr"`
	Method         string        `xml:"method,attr"`
	AnswerOnBridge bool          `xml:"answerOnBridge,attr"`
	Numbers        []twimlNumber `xml:"Number"`
}

type twimlNumber struct {
	StatusCallback       string `xml:"statusCallback,attr"`
	StatusCallbackEvent  string `xml:"statusCallbackEvent,attr"`
	StatusCallbackMethod string `xml:"statusCallbackMethod,attr"`
	Number               string `xml:",chardata"`
}

type twimlRecord struct {
	XMLName            xml.Name `xml:"Record"`
	MaxLength          int      `xml:"maxLength,attr"`
	PlayBeep           bool     `xml:"playBeep,attr"`
	Transcribe         bool     `xml:"transcribe,attr"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
	Action             string   `xml:"action,attr"`
	Method             string   `xml:"method,attr"`
}

const sayVoice = "Polly.Joanna"

const (
	voicemailPrompt = "Sorry, nobody can take your call right now. Please leave a message after the tone."
	goodbyePrompt   = "Thanks, we got your message. Goodbye."
	unavailable     = "Sorry, we are unable to take calls right now. Please try again later."
)

// WebhookURLs builds the absolute callback URLs handed to Twilio.
type WebhookURLs struct {
	Base string
}

func (u WebhookURLs) build(path string, params url.Values) string {
	return strings.TrimRight(u.Base, "/") + "/webhooks/twilio" + path + "?" + params.Encode()
}

func (u WebhookURLs) LegStatus(callSID string) string {
	return u.build("/voice/leg-status", url.Values{"call_sid": {callSID}})
}

func (u WebhookURLs) DialComplete(callSID string) string {
	return u.build("/voice/dial-complete", url.Values{"call_sid": {callSID}})
}

func (u WebhookURLs) Voicemail(callSID, from string) string {
	return u.build("/voice/voicemail", url.Values{"call_sid": {callSID}, "from": {from}})
}

func (u WebhookURLs) Transcription(callSID, from string) string {
	return u.build("/voice/transcription", url.Values{"call_sid": {callSID}, "from": {from}})
}

// RenderDial rings every target at once and reports back to the
// dial-complete URL when the fan-out resolves.
func RenderDial(d routing.Decision, urls WebhookURLs) (string, error) {
	if d.Action != routing.ActionDial || len(d.Targets) == 0 {
		return "", errors.New("telephony: dial decision without targets")
	}
	dial := twimlDial{
		Timeout:        int(d.RingTimeout / time.Second),
		Action:         urls.DialComplete(d.CallSID),
		Method:         "POST",
		AnswerOnBridge: true,
	}
	for _, t := range d.Targets {
		dial.Numbers = append(dial.Numbers, twimlNumber{
			StatusCallback:       urls.LegStatus(d.CallSID),
			StatusCallbackEvent:  "initiated ringing answered completed",
			StatusCallbackMethod: "POST",
			Number:               t.Number,
		})
	}
	return render(dial)
}

// RenderVoicemailPrompt asks the caller for a bounded, transcribed recording.
func RenderVoicemailPrompt(callSID, from string, maxLength time.Duration, urls WebhookURLs) (string, error) {
	secs := int(maxLength / time.Second)
	if secs <= 0 {
		secs = 120
	}
	return render(
		twimlSay{Voice: sayVoice, Text: voicemailPrompt},
		twimlRecord{
			MaxLength:          secs,
			PlayBeep:           true,
			Transcribe:         true,
			TranscribeCallback: urls.Transcription(callSID, from),
			Action:             urls.Voicemail(callSID, from),
			Method:             "POST",
		},
	)
}

func RenderGoodbye() (string, error) {
	return render(twimlSay{Voice: sayVoice, Text: goodbyePrompt}, twimlHangup{})
}

func RenderUnavailable() (string, error) {
	return render(twimlSay{Voice: sayVoice, Text: unavailable}, twimlReject{Reason: "busy"})
}

// RenderEmpty acknowledges a callback without further instructions.
func RenderEmpty() (string, error) {
	return render()
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
