package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates the call list over a half-open time range.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	MissedCalls     int `json:"missed_calls"`
	VoicemailCalls  int `json:"voicemail_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	RingingCalls    int `json:"ringing_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	// AnsweredBy counts completed calls per team member.
	AnsweredBy map[string]int `json:"answered_by"`
}
