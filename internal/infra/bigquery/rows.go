package bigquery

import (
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

const maxErrorMessageLen = 2000

type ExtractionRunRow struct {
	RunID     string `bigquery:"run_id"`     // REQUIRED
	Kind      string `bigquery:"kind"`       // REQUIRED
	UserID    string `bigquery:"user_id"`    // NULLABLE
	SessionID string `bigquery:"session_id"` // NULLABLE

	Status       string `bigquery:"status"`        // REQUIRED
	ErrorKind    string `bigquery:"error_kind"`    // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	CacheHit bool   `bigquery:"cache_hit"` // REQUIRED
	Model    string `bigquery:"model"`     // NULLABLE

	TokensInput  bigquery.NullInt64 `bigquery:"tokens_input"`  // NULLABLE
	TokensOutput bigquery.NullInt64 `bigquery:"tokens_output"` // NULLABLE

	ExpenseCount  int64 `bigquery:"expense_count"`  // REQUIRED
	RejectedCount int64 `bigquery:"rejected_count"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE
}

type SpreadsheetUploadRow struct {
	UploadID       string `bigquery:"upload_id"`       // REQUIRED
	UserID         string `bigquery:"user_id"`         // NULLABLE
	Filename       string `bigquery:"filename"`        // NULLABLE
	ChecksumSHA256 string `bigquery:"checksum_sha256"` // REQUIRED
	SizeBytes      int64  `bigquery:"size_bytes"`      // REQUIRED
	TotalRows      int64  `bigquery:"total_rows"`      // REQUIRED
	ArchiveURI     string `bigquery:"archive_uri"`     // NULLABLE
	Status         string `bigquery:"status"`          // REQUIRED

	MappingConfidence bigquery.NullFloat64 `bigquery:"mapping_confidence"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func newRunRow(run *domain.ExtractionRun) *ExtractionRunRow {
	row := &ExtractionRunRow{
		RunID:         run.RunID,
		Kind:          run.Kind,
		UserID:        run.UserID,
		SessionID:     run.SessionID,
		Status:        run.Status,
		ErrorKind:     string(run.ErrorKind),
		ErrorMessage:  truncate(run.ErrorMessage, maxErrorMessageLen),
		CacheHit:      run.CacheHit,
		Model:         run.Model,
		ExpenseCount:  int64(run.ExpenseCount),
		RejectedCount: int64(run.RejectedCount),
		StartedTS:     run.StartedAt,
	}
	// Cache hits make no upstream call, so token counts stay NULL.
	if run.Model != "" {
		row.TokensInput = bigquery.NullInt64{Int64: run.TokensInput, Valid: true}
		row.TokensOutput = bigquery.NullInt64{Int64: run.TokensOutput, Valid: true}
	}
	if !run.FinishedAt.IsZero() {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: run.FinishedAt, Valid: true}
	}
	return row
}

func newUploadRow(u *domain.SpreadsheetUpload) *SpreadsheetUploadRow {
	row := &SpreadsheetUploadRow{
		UploadID:       u.UploadID,
		UserID:         u.UserID,
		Filename:       u.Filename,
		ChecksumSHA256: u.ChecksumSHA256,
		SizeBytes:      u.SizeBytes,
		TotalRows:      int64(u.TotalRows),
		ArchiveURI:     u.ArchiveURI,
		Status:         u.Status,
		CreatedTS:      u.CreatedAt,
	}
	if u.MappingConfidence > 0 {
		row.MappingConfidence = bigquery.NullFloat64{Float64: u.MappingConfidence, Valid: true}
	}
	return row
}

func (r *SpreadsheetUploadRow) toDomain() *domain.SpreadsheetUpload {
	return &domain.SpreadsheetUpload{
		UploadID:          r.UploadID,
		UserID:            r.UserID,
		Filename:          r.Filename,
		ChecksumSHA256:    r.ChecksumSHA256,
		SizeBytes:         r.SizeBytes,
		TotalRows:         int(r.TotalRows),
		ArchiveURI:        r.ArchiveURI,
		Status:            r.Status,
		MappingConfidence: r.MappingConfidence.Float64,
		CreatedAt:         r.CreatedTS,
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
