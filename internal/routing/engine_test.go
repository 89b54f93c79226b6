package routing

import (
	"testing"
	"time"

	"wrapdesk/internal/team"
)

func TestEngine_FansOutToEnabledPhonesInRingOrder(t *testing.T) {
	e := NewEngine(12 * time.Second)
	d := e.Plan("CA1", []team.Phone{
		{Name: "Shop", Number: "301-555-0002", Enabled: true, RingOrder: 2},
		{Name: "Owner", Number: "(301) 555-0001", Enabled: true, RingOrder: 1},
		{Name: "Off", Number: "3015550003", Enabled: false, RingOrder: 0},
	})
	if d.Action != ActionDial {
		t.Fatalf("expected dial, got %q", d.Action)
	}
	if len(d.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(d.Targets))
	}
	if d.Targets[0].Number != "+13015550001" || d.Targets[1].Number != "+13015550002" {
		t.Fatalf("unexpected targets %+v", d.Targets)
	}
	if d.RingTimeout != 12*time.Second {
		t.Fatalf("unexpected timeout %s", d.RingTimeout)
	}
}

func TestEngine_SkipsDuplicatesAndGarbage(t *testing.T) {
	d := NewEngine(0).Plan("CA1", []team.Phone{
		{Name: "A", Number: "+13015550001", Enabled: true},
		{Name: "A again", Number: "3015550001", Enabled: true},
		{Name: "Broken", Number: "ext 12", Enabled: true},
	})
	if len(d.Targets) != 1 || d.Targets[0].Name != "A" {
		t.Fatalf("unexpected targets %+v", d.Targets)
	}
	if d.RingTimeout != DefaultRingTimeout {
		t.Fatalf("expected default timeout, got %s", d.RingTimeout)
	}
}

func TestEngine_NoTeamPhonesRejects(t *testing.T) {
	d := NewEngine(time.Second).Plan("CA1", nil)
	if d.Action != ActionReject || d.Reason != ReasonNoTeamPhones {
		t.Fatalf("expected reject/no_team_phones, got %+v", d)
	}
}
