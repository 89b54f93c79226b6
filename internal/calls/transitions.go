package calls

import "time"

// Transition is one conditional, field-scoped update keyed by call SID.
// Build them with Answer, Complete, Miss and ReachVoicemail.
type Transition struct {
	SID string
	To  Status

	AnsweredBy    string
	Duration      int
	RecordingURL  string
	VoicemailURL  string
	Transcription string

	At time.Time
}

func Answer(sid, answeredBy string, at time.Time) Transition {
	return Transition{SID: sid, To: StatusInProgress, AnsweredBy: answeredBy, At: at}
}

func Complete(sid, answeredBy string, duration int, recordingURL string, at time.Time) Transition {
	return Transition{SID: sid, To: StatusCompleted, AnsweredBy: answeredBy, Duration: duration, RecordingURL: recordingURL, At: at}
}

func Miss(sid string, at time.Time) Transition {
	return Transition{SID: sid, To: StatusMissed, At: at}
}

func ReachVoicemail(sid string, duration int, voicemailURL, transcription string, at time.Time) Transition {
	return Transition{SID: sid, To: StatusVoicemail, Duration: duration, VoicemailURL: voicemailURL, Transcription: transcription, At: at}
}

// allowedFrom lists the states each target may be entered from. Nothing may
// leave completed or voicemail except completed re-entering itself, which
// only ever grows the duration.
var allowedFrom = map[Status][]Status{
	StatusInProgress: {StatusRinging, StatusInProgress},
	StatusCompleted:  {StatusRinging, StatusInProgress, StatusCompleted},
	StatusMissed:     {StatusRinging},
	StatusVoicemail:  {StatusRinging, StatusMissed},
}

// Allowed reports whether a call in from may take a transition to to.
func Allowed(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Apply is the compare-and-set rule every repository implements: it returns
// the updated call and true, or the unchanged call and false when the
// current state does not permit the transition.
//
// answered_by is written at most once. Duration under completed never
// shrinks. A recording URL, once set, is kept.
func Apply(c Call, t Transition) (Call, bool) {
	if !Allowed(c.Status(), t.To) {
		return c, false
	}

	prevAnswered := c.AnsweredBy()
	answered := prevAnswered
	if answered == "" {
		answered = t.AnsweredBy
	}

	switch t.To {
	case StatusInProgress:
		c.State = InProgress{AnsweredBy: answered}
	case StatusCompleted:
		next := Completed{AnsweredBy: answered, Duration: t.Duration, RecordingURL: t.RecordingURL}
		if prev, ok := c.State.(Completed); ok {
			if prev.Duration > next.Duration {
				next.Duration = prev.Duration
			}
			if prev.RecordingURL != "" {
				next.RecordingURL = prev.RecordingURL
			}
		}
		c.State = next
	case StatusMissed:
		c.State = Missed{}
	case StatusVoicemail:
		c.State = Voicemail{Duration: t.Duration, VoicemailURL: t.VoicemailURL, Transcription: t.Transcription}
	default:
		return c, false
	}
	if !t.At.IsZero() {
		c.UpdatedAt = t.At
	}
	return c, true
}

// Outcome of a conditional update.
type Outcome string

const (
	Applied  Outcome = "applied"
	Skipped  Outcome = "skipped"
	NotFound Outcome = "not_found"
)

// Result pairs the outcome with the row as it stands after the attempt.
// Call is zero when the outcome is NotFound.
type Result struct {
	Outcome Outcome
	Call    Call
}
