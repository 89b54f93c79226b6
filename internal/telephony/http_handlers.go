package telephony

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/calls"
	"wrapdesk/internal/metrics"
	"wrapdesk/pkg/logger"
)

// VoiceHandler answers Twilio voice callbacks with TwiML.
//
// Every callback is acknowledged with 200 so Twilio neither retries nor runs
// its own fallback. The one exception is a shop with no phones to ring,
// which is a configuration error worth surfacing.
type VoiceHandler struct {
	Calls              CallFlow
	URLs               WebhookURLs
	VoicemailMaxLength time.Duration
}

func (h VoiceHandler) Incoming(c *gin.Context) {
	form, err := ParseIncomingCall(c.Request)
	if err != nil || form.CallSid == "" {
		h.fail(c, "incoming", "bad_form", err)
		h.voicemail(c, "incoming", form.CallSid, form.From)
		return
	}
	log := logger.Enrich(c, "call_sid", form.CallSid)

	d, err := h.Calls.HandleIncoming(c.Request.Context(), form.Incoming())
	if errors.Is(err, calls.ErrNoTeamPhones) {
		metrics.WebhooksTotal.WithLabelValues("incoming", "no_team_phones").Inc()
		body, _ := RenderUnavailable()
		c.Data(http.StatusServiceUnavailable, "application/xml", []byte(body))
		return
	}
	if err != nil {
		// nobody to dial without the team list; let the caller leave a message
		h.fail(c, "incoming", "error", err)
		h.voicemail(c, "incoming", form.CallSid, form.From)
		return
	}

	body, err := RenderDial(d, h.URLs)
	if err != nil {
		log.Error("dial twiml render failed", "err", err)
		h.voicemail(c, "incoming", form.CallSid, form.From)
		return
	}
	metrics.WebhooksTotal.WithLabelValues("incoming", "ok").Inc()
	log.Info("fan-out", "targets", len(d.Targets), "ring_timeout", d.RingTimeout)
	h.xml(c, body)
}

func (h VoiceHandler) LegStatus(c *gin.Context) {
	form, err := ParseLegStatus(c.Request)
	if err != nil || form.ParentSID == "" {
		h.fail(c, "leg_status", "bad_form", err)
		h.empty(c)
		return
	}
	logger.Enrich(c, "call_sid", form.ParentSID, "leg_status", form.CallStatus)
	res, err := h.Calls.HandleLegStatus(c.Request.Context(), form.Event())
	h.outcome(c, "leg_status", res.Outcome, err)
	h.empty(c)
}

func (h VoiceHandler) DialComplete(c *gin.Context) {
	form, err := ParseDialComplete(c.Request)
	if err != nil || form.CallSID == "" {
		h.fail(c, "dial_complete", "bad_form", err)
		h.empty(c)
		return
	}
	logger.Enrich(c, "call_sid", form.CallSID, "dial_status", form.DialCallStatus)

	res, err := h.Calls.HandleDialComplete(c.Request.Context(), form.Outcome())
	h.outcome(c, "dial_complete", res.Outcome, err)
	answered := form.Duration > 0 || form.DialCallStatus == "answered" || form.DialCallStatus == "completed"
	if res.PromptVoicemail || (err != nil && !answered) {
		from := res.Call.From
		if from == "" {
			from = c.Request.PostFormValue("From")
		}
		h.voicemail(c, "dial_complete", form.CallSID, from)
		return
	}
	h.empty(c)
}

func (h VoiceHandler) Voicemail(c *gin.Context) {
	form, err := ParseVoicemail(c.Request)
	if err != nil || form.CallSID == "" {
		h.fail(c, "voicemail", "bad_form", err)
	} else {
		logger.Enrich(c, "call_sid", form.CallSID)
		res, err := h.Calls.HandleVoicemail(c.Request.Context(), form.Event())
		h.outcome(c, "voicemail", res.Outcome, err)
	}
	body, _ := RenderGoodbye()
	h.xml(c, body)
}

func (h VoiceHandler) Transcription(c *gin.Context) {
	form, err := ParseVoicemail(c.Request)
	if err != nil || form.CallSID == "" {
		h.fail(c, "transcription", "bad_form", err)
		h.empty(c)
		return
	}
	logger.Enrich(c, "call_sid", form.CallSID)
	res, err := h.Calls.HandleTranscription(c.Request.Context(), form.Event())
	h.outcome(c, "transcription", res.Outcome, err)
	h.empty(c)
}

func (h VoiceHandler) voicemail(c *gin.Context, endpoint, callSID, from string) {
	body, err := RenderVoicemailPrompt(callSID, from, h.VoicemailMaxLength, h.URLs)
	if err != nil {
		logger.FromGin(c).Error("voicemail twiml render failed", "endpoint", endpoint, "err", err)
		h.empty(c)
		return
	}
	h.xml(c, body)
}

func (h VoiceHandler) outcome(c *gin.Context, endpoint string, o calls.Outcome, err error) {
	if err != nil {
		h.fail(c, endpoint, "error", err)
		return
	}
	metrics.WebhooksTotal.WithLabelValues(endpoint, string(o)).Inc()
}

func (h VoiceHandler) fail(c *gin.Context, endpoint, outcome string, err error) {
	metrics.WebhooksTotal.WithLabelValues(endpoint, outcome).Inc()
	logger.FromGin(c).Error("webhook failed", "endpoint", endpoint, "outcome", outcome, "err", err)
}

func (h VoiceHandler) empty(c *gin.Context) { writeEmpty(c) }

func (h VoiceHandler) xml(c *gin.Context, body string) {
	c.Data(http.StatusOK, "application/xml", []byte(body))
}

// SMSHandler persists inbound texts. The reply is always an empty TwiML
// response; auto-replies are not sent.
type SMSHandler struct {
	Messages InboundMessages
	Lookup   CallerLookup
}

func (h SMSHandler) Inbound(c *gin.Context) {
	form, err := ParseInboundSMS(c.Request)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("sms", "bad_form").Inc()
		logger.FromGin(c).Error("sms webhook parse failed", "err", err)
		writeEmpty(c)
		return
	}
	ctx := c.Request.Context()
	log := logger.Enrich(c, "message_sid", form.MessageSid)

	m, err := h.Messages.RecordInbound(ctx, form.Inbound())
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("sms", "error").Inc()
		log.Error("inbound sms not stored", "err", err)
		writeEmpty(c)
		return
	}

	attrs := []any{"message_id", m.ID, "media", len(m.MediaURLs)}
	if h.Lookup != nil {
		id, ok, err := h.Lookup.Lookup(ctx, form.From)
		switch {
		case err != nil:
			log.Warn("sender lookup failed", "err", err)
		case ok:
			attrs = append(attrs, "customer_id", id.CustomerID, "customer", id.DisplayName())
		}
	}
	log.Info("inbound sms", attrs...)
	metrics.WebhooksTotal.WithLabelValues("sms", "ok").Inc()
	writeEmpty(c)
}

func writeEmpty(c *gin.Context) {
	body, _ := RenderEmpty()
	c.Data(http.StatusOK, "application/xml", []byte(body))
}
