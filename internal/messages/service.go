package messages

import (
	"context"
	"errors"
	"strings"
	"time"

	"wrapdesk/internal/metrics"
	"wrapdesk/internal/phone"
	"wrapdesk/internal/realtime"
	"wrapdesk/pkg/logger"
	"wrapdesk/pkg/utils"
	"wrapdesk/pkg/validate"
)

// Sender is the outbound SMS provider. A transport or API failure is an
// error; OK=false without an error is a provider-declared rejection.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

type SendRequest struct {
	To        string
	Body      string
	MediaURLs []string
}

type SendResult struct {
	OK         bool
	ProviderID string
	Message    string
}

type Service struct {
	repo   Repository
	sender Sender
	pub    realtime.Publisher
	now    func() time.Time
}

func NewService(repo Repository, sender Sender, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.Nop{}
	}
	return &Service{repo: repo, sender: sender, pub: pub, now: time.Now}
}

type Inbound struct {
	From       string
	Body       string
	MediaURLs  []string
	ProviderID string
}

// RecordInbound persists an inbound SMS. A sender number that does not
// normalize is still stored; it forms its own conversation.
func (s *Service) RecordInbound(ctx context.Context, in Inbound) (Message, error) {
	return s.insert(ctx, Message{
		Direction:     DirectionInbound,
		Kind:          KindSMS,
		CustomerPhone: strings.TrimSpace(in.From),
		Body:          in.Body,
		MediaURLs:     in.MediaURLs,
		Status:        StatusReceived,
		ProviderID:    in.ProviderID,
	})
}

type VoicemailNote struct {
	CallSID       string
	From          string
	Transcription string
	RecordingURL  string
	Duration      int
}

// RecordVoicemail surfaces a transcribed voicemail in the caller's thread.
func (s *Service) RecordVoicemail(ctx context.Context, v VoicemailNote) (Message, error) {
	var media []string
	if v.RecordingURL != "" {
		media = []string{v.RecordingURL}
	}
	return s.insert(ctx, Message{
		Direction:     DirectionInbound,
		Kind:          KindVoicemail,
		CustomerPhone: strings.TrimSpace(v.From),
		Body:          v.Transcription,
		MediaURLs:     media,
		Status:        StatusReceived,
		ProviderID:    v.CallSID,
	})
}

type SendInput struct {
	To        string   `json:"to"`
	Body      string   `json:"body" validate:"max=1600"`
	MediaURLs []string `json:"media_urls" validate:"max=10,dive,url"`
}

// Send persists the message as queued, calls the provider, then records the
// outcome. A failed send returns the stored failed message together with a
// *ProviderError.
func (s *Service) Send(ctx context.Context, in SendInput) (Message, error) {
	if err := validate.Struct(in); err != nil {
		return Message{}, err
	}
	key := phone.Normalize(in.To)
	if !key.Matchable() {
		return Message{}, ErrInvalidPhone
	}
	body := strings.TrimSpace(in.Body)
	if body == "" && len(in.MediaURLs) == 0 {
		return Message{}, ErrEmptyMessage
	}
	if s.sender == nil {
		return Message{}, errors.New("messages: sender not configured")
	}

	m, err := s.insert(ctx, Message{
		Direction:     DirectionOutbound,
		Kind:          KindSMS,
		CustomerPhone: key.E164(),
		Body:          body,
		MediaURLs:     in.MediaURLs,
		Status:        StatusQueued,
		Read:          true,
	})
	if err != nil {
		return Message{}, err
	}

	start := s.now()
	res, sendErr := s.sender.Send(ctx, SendRequest{To: key.E164(), Body: body, MediaURLs: in.MediaURLs})
	metrics.SMSSendDuration.Observe(time.Since(start).Seconds())

	if sendErr == nil && !res.OK {
		sendErr = &ProviderError{Message: res.Message}
	}
	if sendErr != nil {
		metrics.SMSSendTotal.WithLabelValues("failed").Inc()
		logger.From(ctx).Warn("sms send failed", "message_id", m.ID, "err", sendErr)
		failed, err := s.updateDelivery(ctx, m, StatusFailed, res.ProviderID, sendErr.Error())
		if err != nil {
			return m, err
		}
		var pe *ProviderError
		if !errors.As(sendErr, &pe) {
			pe = &ProviderError{Message: sendErr.Error()}
		}
		return failed, pe
	}

	metrics.SMSSendTotal.WithLabelValues("sent").Inc()
	return s.updateDelivery(ctx, m, StatusSent, res.ProviderID, "")
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Message, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *Service) ForKey(ctx context.Context, key phone.Key, limit int) ([]Message, error) {
	return s.repo.ForKey(ctx, key, limit)
}

type conversationEvent struct {
	Phone    string `json:"phone"`
	Archived bool   `json:"archived"`
	Unread   int    `json:"unread"`
	Changed  int64  `json:"changed"`
	Action   string `json:"action"`
}

// MarkRead clears the unread state of every inbound message for the phone.
// raw may also be the group key of an unmatchable conversation.
func (s *Service) MarkRead(ctx context.Context, raw string) (int64, error) {
	t, err := ThreadOf(raw)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, t)
	if err != nil {
		return 0, err
	}
	gk := t.GroupKey()
	s.publish(ctx, realtime.KindConversation, gk, gk, conversationEvent{Phone: gk, Changed: n, Action: "read"})
	return n, nil
}

// Archive hides the conversation until its next message. It flags every
// stored message for the phone; nothing ever clears the flag.
func (s *Service) Archive(ctx context.Context, raw string) (int64, error) {
	t, err := ThreadOf(raw)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.Archive(ctx, t)
	if err != nil {
		return 0, err
	}
	gk := t.GroupKey()
	s.publish(ctx, realtime.KindConversation, gk, gk, conversationEvent{Phone: gk, Archived: true, Changed: n, Action: "archive"})
	return n, nil
}

func (s *Service) insert(ctx context.Context, m Message) (Message, error) {
	now := s.now().UTC()
	m.ID = utils.NewULID(now)
	m.CreatedAt = now
	out, created, err := s.repo.Insert(ctx, m)
	if err != nil {
		return Message{}, err
	}
	if !created {
		logger.From(ctx).Debug("duplicate inbound message ignored", "provider_id", m.ProviderID, "message_id", out.ID)
		return out, nil
	}
	s.publish(ctx, realtime.KindMessage, phone.GroupKey(out.CustomerPhone), out.ID, out)
	return out, nil
}

func (s *Service) updateDelivery(ctx context.Context, m Message, status Status, providerID, errMsg string) (Message, error) {
	out, err := s.repo.UpdateDelivery(ctx, m.ID, status, providerID, errMsg)
	if err != nil {
		return m, err
	}
	s.publish(ctx, realtime.KindMessage, phone.GroupKey(out.CustomerPhone), out.ID, out)
	return out, nil
}

// publish is best effort: the row is already committed and the dashboard
// reloads on reconnect.
func (s *Service) publish(ctx context.Context, kind realtime.Kind, key, ref string, payload any) {
	if err := s.pub.Publish(ctx, kind, key, ref, payload); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "kind", kind, "key", key, "err", err)
	}
}
