package reporting

import "time"

// CampaignSummary is the operator's one-look view of campaign state.

type CampaignSummary struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalRecords int            `json:"total_records"`
	StatusCounts map[string]int `json:"status_counts"`

	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Terminal   int `json:"terminal"`

	TotalAttempts int `json:"total_attempts"`

	// Headroom is how many calls admission would allow right now; zero when
	// the calling window is closed or a cap is saturated.
	Headroom   int  `json:"headroom"`
	WindowOpen bool `json:"window_open"`

	// NextEligibleAt is the earliest future retry slot, if any.
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`

	// QuotaRemaining is present only when a billing plan is configured.
	QuotaRemaining *int `json:"quota_remaining,omitempty"`
}

// OutcomeMetrics aggregates how conversations went across the campaign.

type OutcomeMetrics struct {
	Attempted int `json:"attempted"`

	// Reached counts records whose terminal outcome involved a human
	// (or their explicit choice), as opposed to no-answer/busy/failure.
	Reached       int `json:"reached"`
	ActiveLooking int `json:"active_looking"`
	NotLooking    int `json:"not_looking"`

	ReachRate    float64 `json:"reach_rate"`
	InterestRate float64 `json:"interest_rate"`
}
