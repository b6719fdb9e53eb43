package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"dialer-platform/internal/records"
)

// WriteResultsCSV renders the campaign state for spreadsheet consumers.
// Column order is stable; downstream tooling keys on these headers.
func WriteResultsCSV(w io.Writer, recs []records.CandidateRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"unique_record_id", "first_name", "last_name", "phone",
		"status", "attempt_count", "last_called_at",
		"short_summary", "raw_outcome", "recording_url",
		"extracted_location", "extracted_availability",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range recs {
		row := []string{
			rec.ID,
			rec.FirstName,
			rec.LastName,
			rec.PhoneE164,
			string(rec.Status),
			strconv.Itoa(rec.AttemptCount),
			formatTime(rec.LastCalledAt),
			rec.ShortSummary,
			rec.RawOutcome,
			rec.RecordingURL,
			rec.ExtractedLocation,
			rec.ExtractedAvailability,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRejectedCSV renders the rejected-rows audit file for an upload.
func WriteRejectedCSV(w io.Writer, rejected []RejectedRow) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"line", "unique_record_id", "reason"}); err != nil {
		return err
	}
	for _, rr := range rejected {
		if err := cw.Write([]string{strconv.Itoa(rr.Line), rr.ID, rr.Reason}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
