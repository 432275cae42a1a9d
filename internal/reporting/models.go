package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// StatsRequest asks for the call center header figures.
// Account isolation: AccountID is required.
type StatsRequest struct {
	AccountID string
	// Location defines "today". Nil means UTC.
	Location *time.Location
}

// CallCenterStats mirrors the four dashboard tiles.
type CallCenterStats struct {
	AccountID string `json:"account_id"`

	ActiveCalls    int `json:"active_calls"`
	ScheduledToday int `json:"scheduled_today"`

	// AverageDurationSeconds averages completed calls only, floored.
	AverageDurationSeconds int    `json:"average_duration_seconds"`
	AverageDuration        string `json:"average_duration"`

	// SuccessRate is completed/total as a percentage with one decimal.
	SuccessRate float64 `json:"success_rate"`

	TotalCalls int `json:"total_calls"`
}

// CallsSummaryRequest requests outcome counts over a start_time range.
type CallsSummaryRequest struct {
	AccountID    string    `json:"account_id"`
	Range        TimeRange `json:"range"`
	VoiceAgentID string    `json:"voice_agent_id,omitempty"`
}

type CallsSummary struct {
	AccountID    string `json:"account_id"`
	VoiceAgentID string `json:"voice_agent_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	ScheduledCalls  int `json:"scheduled_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	MissedCalls     int `json:"missed_calls"`

	// Breakdown of missed calls by outcome.
	CancelledCalls int `json:"cancelled_calls"`
	FailedCalls    int `json:"failed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
