package telephony

import (
	"context"
	"errors"
)

// CallPlacer defines the provider-agnostic interface used by the dispatch
// scheduler.
//
// Rules:
// - No provider SDK/API calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw
//   payloads in Raw if needed.
type CallPlacer interface {
	Name() string

	// PlaceCall initiates one outbound call. On success the provider call id
	// is returned for completion-report correlation. Any error is an
	// initiation failure; the caller treats it as a FAILED attempt.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

var ErrPlacementRejected = errors.New("telephony: provider rejected call placement")

// PlaceCallRequest is one outbound call to one candidate.
type PlaceCallRequest struct {
	// RecordID rides along as provider metadata so completion reports can be
	// correlated even if the call id lookup misses.
	RecordID string `json:"record_id"`

	PhoneE164 string `json:"phone_e164"`

	// FirstName personalizes the assistant greeting when present.
	FirstName string `json:"first_name,omitempty"`
}

type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id"`

	// Status is the provider's initial call state (e.g. "queued").
	Status string `json:"status,omitempty"`

	// Raw is the provider response for debugging/audit; JSON string.
	Raw string `json:"raw,omitempty"`
}
