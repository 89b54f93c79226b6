package calls

import (
	"context"
	"errors"
	"strings"
	"time"

	"wrapdesk/internal/messages"
	"wrapdesk/internal/metrics"
	"wrapdesk/internal/realtime"
	"wrapdesk/internal/routing"
	"wrapdesk/internal/team"
	"wrapdesk/pkg/logger"
)

var (
	// ErrNoTeamPhones is the one configuration error a webhook surfaces as
	// non-2xx: there is nobody to ring.
	ErrNoTeamPhones = errors.New("calls: no enabled team phones")
	ErrMissingSID   = errors.New("calls: call sid is required")
)

// TeamDirectory is the read side of the team phone configuration.
type TeamDirectory interface {
	ListEnabled(ctx context.Context) ([]team.Phone, error)
	FindByNumber(ctx context.Context, raw string) (team.Phone, error)
}

// VoicemailSink turns a transcribed voicemail into a conversation message.
type VoicemailSink interface {
	RecordVoicemail(ctx context.Context, v messages.VoicemailNote) (messages.Message, error)
}

type Options struct {
	Engine    routing.Engine
	Publisher realtime.Publisher
	Voicemail VoicemailSink
	Now       func() time.Time
}

// Service drives the call state machine from carrier webhooks. It holds no
// per-call state: every step is a conditional update in the repository.
type Service struct {
	repo      Repository
	team      TeamDirectory
	engine    routing.Engine
	pub       realtime.Publisher
	voicemail VoicemailSink
	now       func() time.Time
}

func NewService(repo Repository, dir TeamDirectory, opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = realtime.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Engine.RingTimeout <= 0 {
		opts.Engine = routing.NewEngine(0)
	}
	return &Service{
		repo:      repo,
		team:      dir,
		engine:    opts.Engine,
		pub:       opts.Publisher,
		voicemail: opts.Voicemail,
		now:       opts.Now,
	}
}

type Incoming struct {
	CallSID string
	From    string
	To      string
}

// HandleIncoming records the call as ringing and plans the fan-out. A carrier
// retry of the same SID plans again without touching the stored row.
func (s *Service) HandleIncoming(ctx context.Context, in Incoming) (routing.Decision, error) {
	if strings.TrimSpace(in.CallSID) == "" {
		return routing.Decision{}, ErrMissingSID
	}
	now := s.now().UTC()
	c := Call{
		SID:       in.CallSID,
		Direction: DirectionInbound,
		From:      in.From,
		To:        in.To,
		State:     Ringing{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return routing.Decision{}, err
	}
	log := logger.From(ctx)
	if created {
		log.Info("incoming call", "from", in.From, "to", in.To)
		s.publish(ctx, c)
	} else {
		log.Debug("incoming call retry", "from", in.From)
	}

	phones, err := s.team.ListEnabled(ctx)
	if err != nil {
		return routing.Decision{}, err
	}
	d := s.engine.Plan(in.CallSID, phones)
	if d.Action == routing.ActionReject {
		log.Error("no team phones to ring", "reason", d.Reason)
		// nobody will ring, so the call is missed now rather than at the next sweep
		if _, err := s.apply(ctx, Miss(in.CallSID, now)); err != nil {
			log.Warn("rejected call not marked missed", "err", err)
		}
		return d, ErrNoTeamPhones
	}
	return d, nil
}

type LegStatus string

const (
	LegAnswered  LegStatus = "answered"
	LegCompleted LegStatus = "completed"
	LegOther     LegStatus = "other"
)

// LegEvent is a status callback for one dialed team phone.
type LegEvent struct {
	CallSID  string
	Status   LegStatus
	Number   string
	Duration int
}

// HandleLegStatus records which team member answered and, once their leg
// ends with talk time, completes the call.
func (s *Service) HandleLegStatus(ctx context.Context, ev LegEvent) (Result, error) {
	switch ev.Status {
	case LegAnswered:
		return s.apply(ctx, Answer(ev.CallSID, s.resolveMember(ctx, ev.Number), s.now().UTC()))
	case LegCompleted:
		if ev.Duration <= 0 {
			// every unanswered leg also completes; only talk time counts
			return s.current(ctx, ev.CallSID)
		}
		return s.apply(ctx, Complete(ev.CallSID, s.resolveMember(ctx, ev.Number), ev.Duration, "", s.now().UTC()))
	default:
		return s.current(ctx, ev.CallSID)
	}
}

// DialOutcome is the aggregate result of the fan-out.
type DialOutcome struct {
	CallSID      string
	Status       string
	Duration     int
	RecordingURL string
}

func (d DialOutcome) answered() bool {
	return d.Duration > 0 || d.Status == "answered" || d.Status == "completed"
}

type DialResult struct {
	Result
	PromptVoicemail bool
}

// HandleDialComplete finalizes an answered call, or marks it missed and asks
// the caller for a voicemail. The prompt is also returned when the row is
// missing so the caller is never left in silence.
func (s *Service) HandleDialComplete(ctx context.Context, d DialOutcome) (DialResult, error) {
	now := s.now().UTC()
	if d.answered() {
		res, err := s.apply(ctx, Complete(d.CallSID, "", d.Duration, d.RecordingURL, now))
		return DialResult{Result: res}, err
	}
	res, err := s.apply(ctx, Miss(d.CallSID, now))
	if err != nil {
		return DialResult{}, err
	}
	prompt := res.Outcome == Applied || res.Outcome == NotFound ||
		(res.Outcome == Skipped && res.Call.Status() == StatusMissed)
	return DialResult{Result: res, PromptVoicemail: prompt}, nil
}

type VoicemailEvent struct {
	CallSID       string
	From          string
	RecordingURL  string
	Duration      int
	Transcription string
}

// HandleVoicemail stores the recording and, when the carrier transcribed it,
// files the text in the caller's conversation. A retried webhook does not
// duplicate the message because only the applied transition writes it.
func (s *Service) HandleVoicemail(ctx context.Context, v VoicemailEvent) (Result, error) {
	text := strings.TrimSpace(v.Transcription)
	res, err := s.apply(ctx, ReachVoicemail(v.CallSID, v.Duration, v.RecordingURL, text, s.now().UTC()))
	if err != nil || res.Outcome != Applied || text == "" {
		return res, err
	}
	s.recordVoicemail(ctx, res.Call, v, text)
	return res, nil
}

// HandleTranscription attaches a transcription that arrives after the
// recording. Only the first one is kept and messaged.
func (s *Service) HandleTranscription(ctx context.Context, v VoicemailEvent) (Result, error) {
	text := strings.TrimSpace(v.Transcription)
	if strings.TrimSpace(v.CallSID) == "" {
		return Result{}, ErrMissingSID
	}
	if text == "" {
		return s.current(ctx, v.CallSID)
	}
	res, err := s.repo.AttachTranscription(ctx, v.CallSID, text, s.now().UTC())
	if err != nil {
		return Result{}, err
	}
	metrics.CallTransitionsTotal.WithLabelValues("transcription", string(res.Outcome)).Inc()
	if res.Outcome != Applied {
		logger.From(ctx).Debug("transcription ignored", "call_sid", v.CallSID, "outcome", res.Outcome)
		return res, nil
	}
	s.publish(ctx, res.Call)
	s.recordVoicemail(ctx, res.Call, v, text)
	return res, nil
}

func (s *Service) recordVoicemail(ctx context.Context, c Call, v VoicemailEvent, text string) {
	if s.voicemail == nil {
		return
	}
	from := v.From
	if from == "" {
		from = c.From
	}
	recording := v.RecordingURL
	if vm, ok := c.State.(Voicemail); ok && vm.VoicemailURL != "" {
		recording = vm.VoicemailURL
	}
	if _, err := s.voicemail.RecordVoicemail(ctx, messages.VoicemailNote{
		CallSID:       c.SID,
		From:          from,
		Transcription: text,
		RecordingURL:  recording,
		Duration:      c.Duration(),
	}); err != nil {
		// the call row is already voicemail; the recording link still shows on the call list
		logger.From(ctx).Error("voicemail message not recorded", "call_sid", c.SID, "err", err)
	}
}

func (s *Service) Get(ctx context.Context, sid string) (Call, error) {
	return s.repo.Get(ctx, sid)
}

func (s *Service) List(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit)
}

// ExpireStaleRinging marks calls that have rung longer than olderThan as
// missed. It covers completion webhooks the carrier never delivered.
func (s *Service) ExpireStaleRinging(ctx context.Context, olderThan time.Duration) ([]Call, error) {
	now := s.now().UTC()
	expired, err := s.repo.ExpireStale(ctx, now.Add(-olderThan), now)
	if err != nil {
		return nil, err
	}
	for _, c := range expired {
		metrics.StaleCallsExpiredTotal.Inc()
		metrics.CallTransitionsTotal.WithLabelValues(string(StatusMissed), "expired").Inc()
		logger.From(ctx).Warn("stale ringing call expired", "call_sid", c.SID, "created_at", c.CreatedAt)
		s.publish(ctx, c)
	}
	return expired, nil
}

func (s *Service) apply(ctx context.Context, t Transition) (Result, error) {
	if strings.TrimSpace(t.SID) == "" {
		return Result{}, ErrMissingSID
	}
	res, err := s.repo.Transition(ctx, t)
	if err != nil {
		metrics.CallTransitionsTotal.WithLabelValues(string(t.To), "error").Inc()
		return Result{}, err
	}
	metrics.CallTransitionsTotal.WithLabelValues(string(t.To), string(res.Outcome)).Inc()

	log := logger.From(ctx).With("call_sid", t.SID, "to", t.To)
	switch res.Outcome {
	case Applied:
		log.Info("call transition applied")
		s.publish(ctx, res.Call)
	case Skipped:
		log.Debug("call transition skipped", "status", res.Call.Status())
	case NotFound:
		// carrier retry after a dropped insert; acknowledge anyway
		log.Warn("call transition for unknown call")
	}
	return res, nil
}

func (s *Service) current(ctx context.Context, sid string) (Result, error) {
	c, err := s.repo.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: NotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: Skipped, Call: c}, nil
}

// resolveMember names the team member behind a dialed number, falling back to
// the number itself.
func (s *Service) resolveMember(ctx context.Context, number string) string {
	if s.team != nil {
		if p, err := s.team.FindByNumber(ctx, number); err == nil {
			return p.Name
		}
	}
	return number
}

func (s *Service) publish(ctx context.Context, c Call) {
	if err := s.pub.Publish(ctx, realtime.KindCall, c.SID, c.SID, c); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "call_sid", c.SID, "err", err)
	}
}
