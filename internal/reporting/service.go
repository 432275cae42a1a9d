package reporting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"voice-agent-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource is the read side of the call store. Implementations must honour
// Filter.AccountID.
type CallSource interface {
	Query(ctx context.Context, f calls.Filter) ([]calls.Call, error)
}

type Service struct {
	source CallSource
	clock  func() time.Time
}

func NewService(source CallSource) *Service {
	return &Service{source: source, clock: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.clock = now
	return s
}

func (s *Service) Stats(ctx context.Context, req StatsRequest) (CallCenterStats, error) {
	if req.AccountID == "" {
		return CallCenterStats{}, ErrInvalidRequest
	}
	if s.source == nil {
		return CallCenterStats{}, errors.New("reporting: call source not configured")
	}
	rows, err := s.source.Query(ctx, calls.Filter{AccountID: req.AccountID})
	if err != nil {
		return CallCenterStats{}, err
	}

	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := s.clock().In(loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	endOfDay := startOfDay.AddDate(0, 0, 1)

	out := CallCenterStats{AccountID: req.AccountID, TotalCalls: len(rows)}
	completed, totalDuration := 0, 0
	for _, c := range rows {
		switch c.Status {
		case calls.StatusInProgress:
			out.ActiveCalls++
		case calls.StatusScheduled:
			if !c.StartTime.Before(startOfDay) && c.StartTime.Before(endOfDay) {
				out.ScheduledToday++
			}
		case calls.StatusCompleted:
			completed++
			totalDuration += c.Duration
		}
	}
	if completed > 0 {
		out.AverageDurationSeconds = totalDuration / completed
		out.SuccessRate = math.Round(float64(completed)/float64(len(rows))*1000) / 10
	}
	out.AverageDuration = FormatDuration(out.AverageDurationSeconds)
	return out, nil
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.AccountID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.source == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.source.Query(ctx, calls.Filter{
		AccountID:    req.AccountID,
		VoiceAgentID: req.VoiceAgentID,
		From:         req.Range.From,
		To:           req.Range.To,
	})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{AccountID: req.AccountID, VoiceAgentID: req.VoiceAgentID}
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.StatusScheduled:
			out.ScheduledCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		case calls.StatusCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += c.Duration
		case calls.StatusMissed:
			out.MissedCalls++
			switch c.Outcome {
			case calls.OutcomeCancelled:
				out.CancelledCalls++
			case calls.OutcomeFailed:
				out.FailedCalls++
			case calls.OutcomeNoAnswer:
				out.NoAnswerCalls++
			}
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}

// Board splits calls into upcoming (scheduled, starting now or later) and past.
// Upcoming is ordered soonest first, past most recent first.
func Board(rows []calls.Call, now time.Time) (upcoming, past []calls.Call) {
	upcoming = make([]calls.Call, 0)
	past = make([]calls.Call, 0)
	for _, c := range rows {
		if c.IsUpcoming(now) {
			upcoming = append(upcoming, c)
		} else {
			past = append(past, c)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].StartTime.Before(upcoming[j].StartTime) })
	sort.SliceStable(past, func(i, j int) bool { return past[i].StartTime.After(past[j].StartTime) })
	return upcoming, past
}

// FormatDuration renders seconds as m:ss, or --:-- for zero.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
