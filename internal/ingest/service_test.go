package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"dialer-platform/internal/records"
)

func timeNowUTC() time.Time { return time.Now().UTC() }

func TestNormalizeUKPhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+447700900123", "+447700900123", false},
		{"07700 900123", "+447700900123", false},
		{"0044 7700 900123", "+447700900123", false},
		{"44 7700 900123", "+447700900123", false},
		{"(0770) 090-0123", "+447700900123", false},
		{"0161 496 0000", "+441614960000", false},
		{"", "", true},
		{"not a phone", "", true},
		{"+4407700900123", "", true}, // trunk zero after country code
		{"12345", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeUKPhone(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

const sampleCSV = `Unique_Record_ID,First_Name,Surname,Phone
abc-1,Sam,Taylor,07700 900001
abc-2,Jo,,+447700900002
abc-1,Sam,Taylor,07700 900001
abc-3,Pat,Reed,not-a-number
abc-4,,,07700 900002
abc-5,Ria,Khan,07700 900005
`

func TestIngest_AcceptsAndRejects(t *testing.T) {
	store := records.NewMemoryStore()
	im := NewImporter(store)

	sum, err := im.Ingest(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if sum.Total != 6 || sum.Accepted != 3 {
		t.Fatalf("expected 3/6 accepted, got %+v", sum)
	}
	if len(sum.Rejected) != 3 {
		t.Fatalf("expected 3 rejects, got %+v", sum.Rejected)
	}

	// Duplicate id, bad phone, duplicate phone, in file order.
	if sum.Rejected[0].ID != "abc-1" || !strings.Contains(sum.Rejected[0].Reason, "duplicate of line 2") {
		t.Fatalf("unexpected reject: %+v", sum.Rejected[0])
	}
	if sum.Rejected[1].ID != "abc-3" {
		t.Fatalf("unexpected reject: %+v", sum.Rejected[1])
	}
	if sum.Rejected[2].ID != "abc-4" || !strings.Contains(sum.Rejected[2].Reason, "abc-2") {
		t.Fatalf("unexpected reject: %+v", sum.Rejected[2])
	}

	rec, ok, _ := store.Get(context.Background(), "abc-1")
	if !ok || rec.PhoneE164 != "+447700900001" || rec.Status != records.DispositionPending {
		t.Fatalf("record not loaded: %+v", rec)
	}
}

func TestIngest_ReuploadMergesWithoutResettingState(t *testing.T) {
	store := records.NewMemoryStore()
	im := NewImporter(store)
	ctx := context.Background()

	first := "unique_record_id,phone\nabc-1,07700 900001\n"
	if _, err := im.Ingest(ctx, strings.NewReader(first)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// Simulate a completed call, then re-upload with a name added.
	ok, _ := store.MarkDispatched(ctx, "abc-1", "call-1", timeNowUTC())
	if !ok {
		t.Fatalf("seed dispatch failed")
	}
	applied, _ := store.ApplyCompletion(ctx, "abc-1", "call-1",
		records.CompletionResult{Status: records.DispositionNotLooking}, timeNowUTC())
	if !applied {
		t.Fatalf("seed completion failed")
	}

	second := "unique_record_id,first_name,phone\nabc-1,Sam,07700 900001\n"
	if _, err := im.Ingest(ctx, strings.NewReader(second)); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}

	rec, _, _ := store.Get(ctx, "abc-1")
	if rec.FirstName != "Sam" {
		t.Fatalf("re-upload should merge names: %+v", rec)
	}
	if rec.Status != records.DispositionNotLooking || rec.AttemptCount != 1 {
		t.Fatalf("re-upload must not reset state: %+v", rec)
	}
}

func TestIngest_MissingRequiredColumns(t *testing.T) {
	im := NewImporter(records.NewMemoryStore())

	if _, err := im.Ingest(context.Background(), strings.NewReader("first_name,phone\nSam,07700900001\n")); err == nil {
		t.Fatalf("expected error for missing id column")
	}
	if _, err := im.Ingest(context.Background(), strings.NewReader("unique_record_id,first_name\nabc,Sam\n")); err == nil {
		t.Fatalf("expected error for missing phone column")
	}
}

func TestLoadSuppressions(t *testing.T) {
	store := records.NewMemoryStore()
	im := NewImporter(store)

	input := "phone,reason\n07700 900001,asked to be removed\n07700 900002\nbad-number\n"
	sum, err := im.LoadSuppressions(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sum.Accepted != 2 || len(sum.Rejected) != 1 {
		t.Fatalf("expected 2 accepted 1 rejected, got %+v", sum)
	}

	blocked, _ := store.IsSuppressed(context.Background(), "+447700900001")
	if !blocked {
		t.Fatalf("expected suppression loaded")
	}
}

func TestWriteResultsCSV(t *testing.T) {
	store := records.NewMemoryStore()
	im := NewImporter(store)
	ctx := context.Background()

	if _, err := im.Ingest(ctx, strings.NewReader("unique_record_id,first_name,phone\nabc-1,Sam,07700 900001\n")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	recs, _ := store.ListAll(ctx)
	var buf bytes.Buffer
	if err := WriteResultsCSV(&buf, recs); err != nil {
		t.Fatalf("export: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "unique_record_id,first_name,last_name,phone,status") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "abc-1") || !strings.Contains(lines[1], "PENDING") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}
