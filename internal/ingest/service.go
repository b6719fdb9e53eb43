package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"dialer-platform/internal/records"
	"dialer-platform/pkg/logger"
)

// Importer loads candidate CSVs into the record store.
//
// Ingestion is idempotent: re-uploading a file merges names and phone into
// existing records without touching attempt counts or terminal statuses, so
// an operator can safely re-run an upload after a partial failure.
type Importer struct {
	store records.Store
	clock func() time.Time
}

func NewImporter(store records.Store) *Importer {
	return &Importer{store: store, clock: time.Now}
}

// headerAliases maps normalized header names to canonical columns. Matching
// is case-insensitive and ignores surrounding whitespace.
var headerAliases = map[string]string{
	"unique_record_id": "id",
	"record_id":        "id",
	"id":               "id",
	"phone":            "phone",
	"phone_number":     "phone",
	"mobile":           "phone",
	"telephone":        "phone",
	"first_name":       "first_name",
	"firstname":        "first_name",
	"last_name":        "last_name",
	"lastname":         "last_name",
	"surname":          "last_name",
}

// RejectedRow explains why one CSV line was not ingested.
type RejectedRow struct {
	Line   int    `json:"line"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Summary is the outcome of one upload.
type Summary struct {
	Total    int           `json:"total"`
	Accepted int           `json:"accepted"`
	Rejected []RejectedRow `json:"rejected,omitempty"`
}

// Ingest parses and loads one candidate CSV. Rows failing validation are
// collected, not fatal; only a malformed file or a store failure aborts.
func (im *Importer) Ingest(ctx context.Context, r io.Reader) (Summary, error) {
	log := logger.From(ctx)
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: read header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	seenIDs := map[string]int{}
	seenPhones := map[string]string{}
	now := im.clock().UTC()

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			sum.Rejected = append(sum.Rejected, RejectedRow{Line: line, Reason: "malformed row"})
			sum.Total++
			continue
		}
		sum.Total++

		id := strings.TrimSpace(field(row, cols, "id"))
		if id == "" {
			sum.Rejected = append(sum.Rejected, RejectedRow{Line: line, Reason: "missing record id"})
			continue
		}
		if prev, dup := seenIDs[id]; dup {
			sum.Rejected = append(sum.Rejected, RejectedRow{
				Line: line, ID: id,
				Reason: fmt.Sprintf("duplicate of line %d", prev),
			})
			continue
		}

		phone, err := NormalizeUKPhone(field(row, cols, "phone"))
		if err != nil {
			sum.Rejected = append(sum.Rejected, RejectedRow{Line: line, ID: id, Reason: err.Error()})
			continue
		}
		if owner, dup := seenPhones[phone]; dup && owner != id {
			sum.Rejected = append(sum.Rejected, RejectedRow{
				Line: line, ID: id,
				Reason: "phone already used by record " + owner,
			})
			continue
		}

		seenIDs[id] = line
		seenPhones[phone] = id

		_, err = im.store.UpsertFromIngestion(ctx, records.CandidateRecord{
			ID:        id,
			FirstName: strings.TrimSpace(field(row, cols, "first_name")),
			LastName:  strings.TrimSpace(field(row, cols, "last_name")),
			PhoneE164: phone,
			UpdatedAt: now,
		})
		if err != nil {
			return sum, fmt.Errorf("ingest: upsert %s: %w", id, err)
		}
		sum.Accepted++
	}

	log.Info("csv ingested", "total", sum.Total, "accepted", sum.Accepted, "rejected", len(sum.Rejected))
	return sum, nil
}

// LoadSuppressions ingests a do-not-call CSV: one phone per row, optional
// reason column. Header row optional; a first row that fails phone
// normalization is treated as a header.
func (im *Importer) LoadSuppressions(ctx context.Context, r io.Reader) (Summary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var sum Summary
	now := im.clock().UTC()

	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			sum.Rejected = append(sum.Rejected, RejectedRow{Line: line, Reason: "malformed row"})
			sum.Total++
			continue
		}
		if len(row) == 0 {
			continue
		}
		sum.Total++

		phone, err := NormalizeUKPhone(row[0])
		if err != nil {
			if line == 1 {
				sum.Total--
				continue // header row
			}
			sum.Rejected = append(sum.Rejected, RejectedRow{Line: line, Reason: err.Error()})
			continue
		}

		reason := "suppression list import"
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			reason = strings.TrimSpace(row[1])
		}
		if err := im.store.AddSuppression(ctx, records.SuppressionEntry{
			PhoneE164: phone,
			Reason:    reason,
			CreatedAt: now,
		}); err != nil {
			return sum, fmt.Errorf("ingest: suppress %s: %w", phone, err)
		}
		sum.Accepted++
	}
	return sum, nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[key]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["id"]; !ok {
		return nil, fmt.Errorf("ingest: csv is missing a record id column")
	}
	if _, ok := cols["phone"]; !ok {
		return nil, fmt.Errorf("ingest: csv is missing a phone column")
	}
	return cols, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
