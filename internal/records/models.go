package records

import "time"

// CandidateRecord is one row per unique external record id.
//
// Invariants:
// - ID is globally unique; re-ingestion merges mutable fields but never
//   resets attempt_count or a terminal status.
// - ProviderCallID belongs to exactly one record and one attempt.
// - A record in IN_PROGRESS always has a provider_call_id and last_called_at.
//
// Disposition metadata (summary, raw outcome, transcript, extracted fields)
// is written once per call by the reconciler and only overwritten by a newer
// completion for a later attempt.

type CandidateRecord struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`

	PhoneE164 string `json:"phone_e164" db:"phone_e164"`

	Status       Disposition `json:"status" db:"status"`
	AttemptCount int         `json:"attempt_count" db:"attempt_count"`

	LastCalledAt   *time.Time `json:"last_called_at,omitempty" db:"last_called_at"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty" db:"next_eligible_at"`

	// ProviderCallID correlates the in-flight call with its completion report.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	ShortSummary          string `json:"short_summary,omitempty" db:"short_summary"`
	RawOutcome            string `json:"raw_outcome,omitempty" db:"raw_outcome"`
	Transcript            string `json:"transcript,omitempty" db:"transcript"`
	RecordingURL          string `json:"recording_url,omitempty" db:"recording_url"`
	ExtractedLocation     string `json:"extracted_location,omitempty" db:"extracted_location"`
	ExtractedAvailability string `json:"extracted_availability,omitempty" db:"extracted_availability"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Disposition string

const (
	DispositionPending       Disposition = "PENDING"
	DispositionInProgress    Disposition = "IN_PROGRESS"
	DispositionActiveLooking Disposition = "ACTIVE_LOOKING"
	DispositionNotLooking    Disposition = "NOT_LOOKING"
	DispositionCallBack      Disposition = "CALL_BACK"
	DispositionNoAnswer      Disposition = "NO_ANSWER"
	DispositionWrongNumber   Disposition = "WRONG_NUMBER"
	DispositionDNC           Disposition = "DNC"
	DispositionVoicemail     Disposition = "VOICEMAIL"
	DispositionBusy          Disposition = "BUSY"
	DispositionFailed        Disposition = "FAILED"
)

// Dispositions lists every valid status value in a stable order.
func Dispositions() []Disposition {
	return []Disposition{
		DispositionPending,
		DispositionInProgress,
		DispositionActiveLooking,
		DispositionNotLooking,
		DispositionCallBack,
		DispositionNoAnswer,
		DispositionWrongNumber,
		DispositionDNC,
		DispositionVoicemail,
		DispositionBusy,
		DispositionFailed,
	}
}

func (d Disposition) Valid() bool {
	switch d {
	case DispositionPending, DispositionInProgress, DispositionActiveLooking,
		DispositionNotLooking, DispositionCallBack, DispositionNoAnswer,
		DispositionWrongNumber, DispositionDNC, DispositionVoicemail,
		DispositionBusy, DispositionFailed:
		return true
	default:
		return false
	}
}

// TerminalStatus reports whether a stored status means the record is frozen.
// Retryable outcomes are persisted as PENDING with next_eligible_at set, so
// any stored status other than PENDING/IN_PROGRESS is terminal.
func (d Disposition) TerminalStatus() bool {
	return d != DispositionPending && d != DispositionInProgress
}

// CompletionResult is the state transition the reconciler (or the scheduler,
// for placement failures) persists for one finished call attempt.
type CompletionResult struct {
	Status         Disposition
	NextEligibleAt *time.Time

	ShortSummary          string
	RawOutcome            string
	Transcript            string
	RecordingURL          string
	ExtractedLocation     string
	ExtractedAvailability string
}

// SuppressionEntry marks a phone number permanently ineligible for dispatch.
// Entries are append-only; nothing in this core ever deletes one.
type SuppressionEntry struct {
	PhoneE164 string    `json:"phone_e164" db:"phone_e164"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
