package reporting

import (
	"context"
	"errors"
	"time"

	"wrapdesk/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource is the read side of the call log.
type CallSource interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	calls CallSource
}

func NewService(src CallSource) *Service { return &Service{calls: src} }

// CallsSummary counts calls created in [from, to) by state. Averages cover
// completed calls only; a voicemail's duration is the recording length.
func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return CallsSummary{}, ErrInvalidRequest
	}
	list, err := s.calls.ListBetween(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}
	return Summarize(r, list), nil
}

func Summarize(r TimeRange, list []calls.Call) CallsSummary {
	out := CallsSummary{Range: r, AnsweredBy: map[string]int{}}
	for _, c := range list {
		out.TotalCalls++
		switch st := c.State.(type) {
		case calls.Completed:
			out.CompletedCalls++
			out.TotalDurationSeconds += st.Duration
			if st.RecordingURL != "" {
				out.RecordedCalls++
			}
			if st.AnsweredBy != "" {
				out.AnsweredBy[st.AnsweredBy]++
			}
		case calls.Voicemail:
			out.VoicemailCalls++
		case calls.Missed:
			out.MissedCalls++
		case calls.InProgress:
			out.InProgressCalls++
		default:
			out.RingingCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out
}
