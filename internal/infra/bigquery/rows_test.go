package bigquery

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

func TestNewRunRow(t *testing.T) {
	started := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	run := &domain.ExtractionRun{
		RunID:         "r1",
		Kind:          domain.RunKindChat,
		UserID:        "u1",
		SessionID:     "s1",
		Status:        domain.RunStatusFailed,
		ErrorKind:     domain.KindUpstream,
		ErrorMessage:  "ExtractJSON: timeout",
		Model:         "gemini-2.5-flash",
		TokensInput:   120,
		TokensOutput:  40,
		ExpenseCount:  0,
		RejectedCount: 2,
		StartedAt:     started,
		FinishedAt:    started.Add(time.Second),
	}

	row := newRunRow(run)

	if row.RunID != "r1" || row.Kind != domain.RunKindChat || row.SessionID != "s1" {
		t.Errorf("identity fields not copied: %+v", row)
	}
	if row.ErrorKind != "upstream" {
		t.Errorf("ErrorKind = %q, want upstream", row.ErrorKind)
	}
	if !row.TokensInput.Valid || row.TokensInput.Int64 != 120 {
		t.Errorf("TokensInput = %+v", row.TokensInput)
	}
	if !row.FinishedTS.Valid || !row.FinishedTS.Timestamp.Equal(started.Add(time.Second)) {
		t.Errorf("FinishedTS = %+v", row.FinishedTS)
	}
	if row.RejectedCount != 2 {
		t.Errorf("RejectedCount = %d, want 2", row.RejectedCount)
	}
}

func TestNewRunRow_CacheHitHasNullTokens(t *testing.T) {
	row := newRunRow(&domain.ExtractionRun{RunID: "r2", CacheHit: true, Status: domain.RunStatusSuccess})

	if row.TokensInput.Valid || row.TokensOutput.Valid {
		t.Error("expected NULL token counts for a run without a model call")
	}
	if row.FinishedTS.Valid {
		t.Error("expected NULL finished_ts for an unfinished run")
	}
	if !row.CacheHit {
		t.Error("CacheHit not copied")
	}
}

func TestUploadRowRoundTrip(t *testing.T) {
	created := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	upload := &domain.SpreadsheetUpload{
		UploadID:          "up1",
		UserID:            "u1",
		Filename:          "가계부.xlsx",
		ChecksumSHA256:    "abc",
		SizeBytes:         2048,
		TotalRows:         31,
		ArchiveURI:        "gs://bucket/uploads/abc/가계부.xlsx",
		Status:            "MAPPED",
		MappingConfidence: 0.9,
		CreatedAt:         created,
	}

	got := newUploadRow(upload).toDomain()
	if *got != *upload {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, upload)
	}
}

func TestNewUploadRow_NoConfidence(t *testing.T) {
	row := newUploadRow(&domain.SpreadsheetUpload{UploadID: "up2", Status: "MAPPING_FAILED"})
	if row.MappingConfidence.Valid {
		t.Error("expected NULL mapping_confidence when mapping failed")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate kept %q", got)
	}

	long := strings.Repeat("가", 1000) // 3 bytes each
	got := truncate(long, maxErrorMessageLen)
	if len(got) > maxErrorMessageLen {
		t.Errorf("len = %d, want <= %d", len(got), maxErrorMessageLen)
	}
	if !utf8.ValidString(got) {
		t.Error("truncate split a rune")
	}
}
