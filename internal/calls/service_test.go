package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wrapdesk/internal/messages"
	"wrapdesk/internal/realtime"
	"wrapdesk/internal/routing"
	"wrapdesk/internal/team"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Status
}

func (p *capturePublisher) Publish(ctx context.Context, kind realtime.Kind, key, ref string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload.(Call).Status())
	return nil
}

type captureVoicemail struct {
	notes []messages.VoicemailNote
}

func (c *captureVoicemail) RecordVoicemail(ctx context.Context, v messages.VoicemailNote) (messages.Message, error) {
	c.notes = append(c.notes, v)
	return messages.Message{ID: "m1"}, nil
}

func newTestService(t *testing.T, phones ...team.Phone) (*Service, *MemoryRepo, *capturePublisher, *captureVoicemail) {
	t.Helper()
	repo := NewMemoryRepo()
	pub := &capturePublisher{}
	vm := &captureVoicemail{}
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, team.NewService(team.NewMemoryRepo(phones...)), Options{
		Engine:    routing.NewEngine(12 * time.Second),
		Publisher: pub,
		Voicemail: vm,
		Now:       func() time.Time { return clock },
	})
	return svc, repo, pub, vm
}

var twoPhones = []team.Phone{
	{ID: "p1", Name: "Owner", Number: "+13015550001", Enabled: true, RingOrder: 1},
	{ID: "p2", Name: "Shop", Number: "+13015550002", Enabled: true, RingOrder: 2},
}

func TestMissedCallToVoicemailScenario(t *testing.T) {
	svc, _, pub, vm := newTestService(t, twoPhones...)
	ctx := context.Background()

	d, err := svc.HandleIncoming(ctx, Incoming{CallSID: "CA1", From: "+12405551234", To: "+13015559999"})
	if err != nil {
		t.Fatalf("incoming: %v", err)
	}
	if len(d.Targets) != 2 {
		t.Fatalf("expected both team phones dialed, got %+v", d.Targets)
	}

	dr, err := svc.HandleDialComplete(ctx, DialOutcome{CallSID: "CA1", Status: "no-answer"})
	if err != nil {
		t.Fatalf("dial complete: %v", err)
	}
	if !dr.PromptVoicemail || dr.Call.Status() != StatusMissed {
		t.Fatalf("expected missed + voicemail prompt, got %+v", dr)
	}

	res, err := svc.HandleVoicemail(ctx, VoicemailEvent{CallSID: "CA1", From: "+12405551234", RecordingURL: "https://vm/1", Duration: 14, Transcription: "please call back"})
	if err != nil {
		t.Fatalf("voicemail: %v", err)
	}
	if res.Call.Status() != StatusVoicemail || res.Call.Duration() != 14 {
		t.Fatalf("expected voicemail/14, got %s/%d", res.Call.Status(), res.Call.Duration())
	}
	if len(vm.notes) != 1 || vm.notes[0].Transcription != "please call back" {
		t.Fatalf("expected voicemail message, got %+v", vm.notes)
	}

	// retried voicemail webhook writes nothing new
	if _, err := svc.HandleVoicemail(ctx, VoicemailEvent{CallSID: "CA1", Duration: 14, Transcription: "please call back"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(vm.notes) != 1 {
		t.Fatalf("voicemail message duplicated")
	}
	want := []Status{StatusRinging, StatusMissed, StatusVoicemail}
	if len(pub.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, pub.events)
	}
	for i := range want {
		if pub.events[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, pub.events)
		}
	}
}

func TestAnsweredCallOutOfOrderWebhooks(t *testing.T) {
	svc, repo, _, _ := newTestService(t, twoPhones...)
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, Incoming{CallSID: "CA2", From: "2405551234"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	// completion of the answering leg arrives before its answered callback
	if _, err := svc.HandleLegStatus(ctx, LegEvent{CallSID: "CA2", Status: LegCompleted, Number: "+13015550002", Duration: 40}); err != nil {
		t.Fatalf("leg completed: %v", err)
	}
	res, err := svc.HandleLegStatus(ctx, LegEvent{CallSID: "CA2", Status: LegAnswered, Number: "+13015550001"})
	if err != nil {
		t.Fatalf("leg answered: %v", err)
	}
	if res.Outcome != Skipped {
		t.Fatalf("late answer must be skipped, got %s", res.Outcome)
	}
	dr, err := svc.HandleDialComplete(ctx, DialOutcome{CallSID: "CA2", Status: "completed", Duration: 38})
	if err != nil || dr.PromptVoicemail {
		t.Fatalf("unexpected dial result %+v (%v)", dr, err)
	}

	c, _ := repo.Get(ctx, "CA2")
	if c.Status() != StatusCompleted || c.AnsweredBy() != "Shop" || c.Duration() != 40 {
		t.Fatalf("unexpected final call %+v", c.Record())
	}
}

func TestUnansweredLegCompletionIsIgnored(t *testing.T) {
	svc, repo, _, _ := newTestService(t, twoPhones...)
	ctx := context.Background()
	_, _ = svc.HandleIncoming(ctx, Incoming{CallSID: "CA3", From: "2405551234"})
	if _, err := svc.HandleLegStatus(ctx, LegEvent{CallSID: "CA3", Status: LegCompleted, Number: "+13015550001"}); err != nil {
		t.Fatalf("leg: %v", err)
	}
	c, _ := repo.Get(ctx, "CA3")
	if c.Status() != StatusRinging {
		t.Fatalf("expected still ringing, got %s", c.Status())
	}
}

func TestWebhooksForUnknownCallAreNoops(t *testing.T) {
	svc, _, _, vm := newTestService(t, twoPhones...)
	ctx := context.Background()

	res, err := svc.HandleLegStatus(ctx, LegEvent{CallSID: "CAX", Status: LegAnswered, Number: "+13015550001"})
	if err != nil || res.Outcome != NotFound {
		t.Fatalf("expected not found without error, got %+v (%v)", res, err)
	}
	dr, err := svc.HandleDialComplete(ctx, DialOutcome{CallSID: "CAX", Status: "no-answer"})
	if err != nil || !dr.PromptVoicemail {
		t.Fatalf("caller should still be offered voicemail, got %+v (%v)", dr, err)
	}
	if _, err := svc.HandleVoicemail(ctx, VoicemailEvent{CallSID: "CAX", Transcription: "hi"}); err != nil {
		t.Fatalf("voicemail: %v", err)
	}
	if len(vm.notes) != 0 {
		t.Fatalf("no message for an unknown call")
	}
}

func TestIncomingWithoutTeamPhones(t *testing.T) {
	svc, repo, _, _ := newTestService(t, team.Phone{ID: "p1", Name: "Off", Number: "3015550001", Enabled: false})
	_, err := svc.HandleIncoming(context.Background(), Incoming{CallSID: "CA4", From: "2405551234"})
	if !errors.Is(err, ErrNoTeamPhones) {
		t.Fatalf("expected ErrNoTeamPhones, got %v", err)
	}
	c, err := repo.Get(context.Background(), "CA4")
	if err != nil {
		t.Fatalf("call should still be logged: %v", err)
	}
	if c.Status() != StatusMissed {
		t.Fatalf("rejected call should be missed at once, got %s", c.Status())
	}
}

func TestIncomingRetryKeepsRow(t *testing.T) {
	svc, repo, pub, _ := newTestService(t, twoPhones...)
	ctx := context.Background()
	_, _ = svc.HandleIncoming(ctx, Incoming{CallSID: "CA5", From: "2405551234"})
	_, _ = svc.HandleLegStatus(ctx, LegEvent{CallSID: "CA5", Status: LegAnswered, Number: "+13015550001"})
	if _, err := svc.HandleIncoming(ctx, Incoming{CallSID: "CA5", From: "2405551234"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	c, _ := repo.Get(ctx, "CA5")
	if c.Status() != StatusInProgress || c.AnsweredBy() != "Owner" {
		t.Fatalf("retry must not reset the call: %+v", c.Record())
	}
	if len(pub.events) != 2 {
		t.Fatalf("retry should not publish, got %v", pub.events)
	}
}

func TestExpireStaleRinging(t *testing.T) {
	repo := NewMemoryRepo()
	old := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	_, _ = repo.Create(context.Background(), Call{SID: "old", CreatedAt: old})
	_, _ = repo.Create(context.Background(), Call{SID: "fresh", CreatedAt: old.Add(55 * time.Minute)})
	svc := NewService(repo, nil, Options{Now: func() time.Time { return old.Add(time.Hour) }})

	expired, err := svc.ExpireStaleRinging(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].SID != "old" || expired[0].Status() != StatusMissed {
		t.Fatalf("unexpected expired %+v", expired)
	}
	fresh, _ := repo.Get(context.Background(), "fresh")
	if fresh.Status() != StatusRinging {
		t.Fatalf("fresh call expired")
	}
}

func TestLateTranscriptionIsMessagedOnce(t *testing.T) {
	svc, _, _, vm := newTestService(t, twoPhones...)
	ctx := context.Background()
	_, _ = svc.HandleIncoming(ctx, Incoming{CallSID: "CA6", From: "+12405551234"})
	_, _ = svc.HandleDialComplete(ctx, DialOutcome{CallSID: "CA6", Status: "no-answer"})
	if _, err := svc.HandleVoicemail(ctx, VoicemailEvent{CallSID: "CA6", RecordingURL: "https://vm/6", Duration: 9}); err != nil {
		t.Fatalf("voicemail: %v", err)
	}
	if len(vm.notes) != 0 {
		t.Fatalf("no message without a transcription")
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.HandleTranscription(ctx, VoicemailEvent{CallSID: "CA6", Transcription: "need a quote"}); err != nil {
			t.Fatalf("transcription: %v", err)
		}
	}
	if len(vm.notes) != 1 || vm.notes[0].From != "+12405551234" || vm.notes[0].RecordingURL != "https://vm/6" || vm.notes[0].Duration != 9 {
		t.Fatalf("expected one voicemail message, got %+v", vm.notes)
	}
}
