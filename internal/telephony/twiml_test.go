package telephony

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"wrapdesk/internal/routing"
)

var testURLs = WebhookURLs{Base: "https://shop.example.com/"}

func TestRenderDialRingsEveryTarget(t *testing.T) {
	d := routing.Decision{
		CallSID:     "CA1",
		Action:      routing.ActionDial,
		RingTimeout: 12 * time.Second,
		Targets: []routing.Target{
			{Name: "Ana", Number: "+12405550001"},
			{Name: "Ben", Number: "+12405550002"},
		},
	}
	body, err := RenderDial(d, testURLs)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var parsed struct {
		Dial struct {
			Timeout string `xml:"timeout,attr"`
			Action  string `xml:"action,attr"`
			Numbers []struct {
				Callback string `xml:"statusCallback,attr"`
				Value    string `xml:",chardata"`
			} `xml:"Number"`
		} `xml:"Dial"`
	}
	if err := xml.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("twiml does not parse: %v\n%s", err, body)
	}
	if parsed.Dial.Timeout != "12" {
		t.Fatalf("expected timeout 12, got %q", parsed.Dial.Timeout)
	}
	if parsed.Dial.Action != "https://shop.example.com/webhooks/twilio/voice/dial-complete?call_sid=CA1" {
		t.Fatalf("unexpected action %q", parsed.Dial.Action)
	}
	if len(parsed.Dial.Numbers) != 2 {
		t.Fatalf("expected 2 numbers, got %d", len(parsed.Dial.Numbers))
	}
	if parsed.Dial.Numbers[1].Value != "+12405550002" {
		t.Fatalf("unexpected number %q", parsed.Dial.Numbers[1].Value)
	}
	if !strings.HasSuffix(parsed.Dial.Numbers[0].Callback, "/voice/leg-status?call_sid=CA1") {
		t.Fatalf("unexpected leg callback %q", parsed.Dial.Numbers[0].Callback)
	}
}

func TestRenderDialRequiresTargets(t *testing.T) {
	if _, err := RenderDial(routing.Decision{CallSID: "CA1", Action: routing.ActionDial}, testURLs); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := RenderDial(routing.Decision{CallSID: "CA1", Action: routing.ActionReject}, testURLs); err == nil {
		t.Fatalf("expected error for reject decision")
	}
}

func TestRenderVoicemailPrompt(t *testing.T) {
	body, err := RenderVoicemailPrompt("CA1", "+12405551234", 0, testURLs)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var parsed struct {
		Say    string `xml:"Say"`
		Record struct {
			MaxLength  string `xml:"maxLength,attr"`
			Transcribe string `xml:"transcribe,attr"`
			Callback   string `xml:"transcribeCallback,attr"`
			Action     string `xml:"action,attr"`
		} `xml:"Record"`
	}
	if err := xml.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("twiml does not parse: %v", err)
	}
	if parsed.Say == "" {
		t.Fatalf("expected a prompt")
	}
	if parsed.Record.MaxLength != "120" || parsed.Record.Transcribe != "true" {
		t.Fatalf("unexpected record attrs: %+v", parsed.Record)
	}
	want := "https://shop.example.com/webhooks/twilio/voice/voicemail?call_sid=CA1&from=%2B12405551234"
	if parsed.Record.Action != want {
		t.Fatalf("expected action %q, got %q", want, parsed.Record.Action)
	}
	if !strings.Contains(parsed.Record.Callback, "/voice/transcription?") {
		t.Fatalf("unexpected transcribe callback %q", parsed.Record.Callback)
	}
}

func TestRenderUnavailableRejects(t *testing.T) {
	body, err := RenderUnavailable()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(body, "<Reject") {
		t.Fatalf("expected <Reject in %s", body)
	}
}

func TestRenderEmpty(t *testing.T) {
	body, err := RenderEmpty()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(body, "<Response></Response>") {
		t.Fatalf("unexpected empty response %s", body)
	}
}
