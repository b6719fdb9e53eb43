package billing

import "time"

// Plan is the subscription tier controlling how many calls a month the
// dialer may place. An empty plan disables quota enforcement.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// MonthlyQuota returns the call allowance for a plan. Zero means unknown.
func (p Plan) MonthlyQuota() int {
	switch p {
	case PlanFree:
		return 50
	case PlanPro:
		return 500
	default:
		return 0
	}
}

func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// UsageEntry is an immutable append-only record of one placed call.
// The balance of a month is always derived from these entries; nothing
// mutates a counter directly.
//
// Idempotency invariant: call_id is unique, so a retried RecordUsage for the
// same placement never double-counts.
type UsageEntry struct {
	ID       string `json:"id" db:"id"`
	Plan     Plan   `json:"plan" db:"plan"`
	RecordID string `json:"record_id" db:"record_id"`
	CallID   string `json:"call_id" db:"call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
