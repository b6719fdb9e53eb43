package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"dialer-platform/internal/records"
)

// CompletionReport is the provider-agnostic shape of an end-of-call report.
// Delivery is at-least-once and unordered; everything downstream must treat
// a report as potentially duplicated or stale.
type CompletionReport struct {
	ProviderCallID string

	// EndedReason is the provider's raw outcome code, kept for audit.
	EndedReason string

	// Outcome is the resolved disposition for the retry policy.
	Outcome records.Disposition

	Summary      string
	Transcript   string
	RecordingURL string
	Location     string
	Availability string

	// RecordIDHint is the record id echoed back via call metadata; used as a
	// correlation fallback when the call id lookup misses.
	RecordIDHint string
}

// vapiWebhookEnvelope is the subset of the VAPI server-message payload we
// care about. VAPI posts JSON with a top-level "message" wrapper.
type vapiWebhookEnvelope struct {
	Message struct {
		Type string `json:"type"`

		Call struct {
			ID           string            `json:"id"`
			EndedReason  string            `json:"endedReason"`
			RecordingURL string            `json:"recordingUrl"`
			Metadata     map[string]string `json:"metadata"`
			Analysis     *vapiAnalysis     `json:"analysis"`
		} `json:"call"`

		Transcript   string        `json:"transcript"`
		Summary      string        `json:"summary"`
		RecordingURL string        `json:"recordingUrl"`
		Analysis     *vapiAnalysis `json:"analysis"`
	} `json:"message"`
}

type vapiAnalysis struct {
	Summary        string          `json:"summary"`
	StructuredData json.RawMessage `json:"structuredData"`
}

type vapiStructuredData struct {
	Disposition  string `json:"disposition"`
	Summary      string `json:"summary"`
	Location     string `json:"location"`
	Availability string `json:"availability"`
}

// endedReasonOutcomes maps VAPI ended reasons to dispositions. An empty
// value marks a normally-completed call whose disposition comes from the
// post-call analysis instead.
var endedReasonOutcomes = map[string]records.Disposition{
	"customer-did-not-answer":                  records.DispositionNoAnswer,
	"customer-did-not-pick-up":                 records.DispositionNoAnswer,
	"silence-timed-out":                        records.DispositionNoAnswer,
	"customer-busy":                            records.DispositionBusy,
	"voicemail":                                records.DispositionVoicemail,
	"machine-detected":                         records.DispositionVoicemail,
	"error":                                    records.DispositionFailed,
	"pipeline-error":                           records.DispositionFailed,
	"phone-call-provider-closed-websocket":     records.DispositionFailed,
	"customer-ended-call":                      "",
	"assistant-ended-call":                     "",
	"assistant-said-end-call-phrase":           "",
	"max-duration-reached":                     "",
}

// ParseCompletionReport decodes a webhook body. The second return value is
// false for message types other than end-of-call reports (status updates,
// hang events), which are acknowledged but carry no state transition.
func ParseCompletionReport(body []byte) (CompletionReport, bool, error) {
	var env vapiWebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CompletionReport{}, false, fmt.Errorf("telephony: webhook decode failed: %w", err)
	}
	if env.Message.Type != "end-of-call-report" {
		return CompletionReport{}, false, nil
	}

	msg := env.Message
	analysis := msg.Analysis
	if analysis == nil {
		analysis = msg.Call.Analysis
	}

	var structured vapiStructuredData
	if analysis != nil && len(analysis.StructuredData) > 0 {
		// Best-effort: malformed structured data falls back to heuristics.
		_ = json.Unmarshal(analysis.StructuredData, &structured)
	}

	summary := structured.Summary
	if summary == "" && analysis != nil {
		summary = analysis.Summary
	}
	if summary == "" {
		summary = msg.Summary
	}

	recording := msg.RecordingURL
	if recording == "" {
		recording = msg.Call.RecordingURL
	}

	report := CompletionReport{
		ProviderCallID: msg.Call.ID,
		EndedReason:    msg.Call.EndedReason,
		Summary:        summary,
		Transcript:     msg.Transcript,
		RecordingURL:   recording,
		Location:       structured.Location,
		Availability:   structured.Availability,
		RecordIDHint:   msg.Call.Metadata["record_id"],
	}
	if report.Summary == "" && report.EndedReason != "" {
		report.Summary = "Call ended: " + report.EndedReason
	}
	report.Outcome = resolveOutcome(structured.Disposition, report.EndedReason, summary)
	return report, true, nil
}

// resolveOutcome picks the disposition with the same precedence the analysis
// pipeline promises: structured analysis first, then the ended-reason map,
// then a summary-text heuristic, and FAILED as the last resort.
func resolveOutcome(analysisDisposition, endedReason, summary string) records.Disposition {
	if d, ok := parseDisposition(analysisDisposition); ok {
		return d
	}
	if mapped, known := endedReasonOutcomes[endedReason]; known && mapped != "" {
		return mapped
	}
	if d, ok := inferFromSummary(summary); ok {
		return d
	}
	return records.DispositionFailed
}

func parseDisposition(raw string) (records.Disposition, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	if v == "" {
		return "", false
	}
	if d := records.Disposition(v); d.Valid() && d.TerminalStatus() {
		return d, true
	}
	// Fuzzy: an analysis model sometimes decorates the label.
	for _, d := range records.Dispositions() {
		if !d.TerminalStatus() {
			continue
		}
		if strings.Contains(v, string(d)) {
			return d, true
		}
	}
	return "", false
}

var summaryHints = []struct {
	keywords []string
	outcome  records.Disposition
}{
	{[]string{"not looking", "not interested", "not open", "declined"}, records.DispositionNotLooking},
	{[]string{"actively looking", "open to", "interested in", "looking for"}, records.DispositionActiveLooking},
	{[]string{"call back", "callback", "bad time"}, records.DispositionCallBack},
	{[]string{"wrong number", "wrong person"}, records.DispositionWrongNumber},
	{[]string{"remove", "do not call", "unsubscribe"}, records.DispositionDNC},
	{[]string{"voicemail", "left a message"}, records.DispositionVoicemail},
}

// SignBody computes the hex HMAC-SHA256 of a webhook body. Exposed so tests
// and tooling can produce valid signatures.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the X-Vapi-Signature header value against the raw
// body in constant time. An empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func inferFromSummary(summary string) (records.Disposition, bool) {
	s := strings.ToLower(summary)
	if s == "" {
		return "", false
	}
	for _, hint := range summaryHints {
		for _, kw := range hint.keywords {
			if strings.Contains(s, kw) {
				return hint.outcome, true
			}
		}
	}
	return "", false
}
