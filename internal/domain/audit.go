package domain

import "time"

// Run statuses.
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// Run kinds, one per entry point.
const (
	RunKindChat        = "CHAT"
	RunKindSpreadsheet = "SPREADSHEET"
	RunKindRow         = "ROW"
)

// ExtractionRun is the audit record of one pipeline invocation. It never
// carries the extracted transactions themselves.
type ExtractionRun struct {
	RunID         string
	Kind          string
	UserID        string
	SessionID     string
	Status        string
	ErrorKind     Kind
	ErrorMessage  string
	CacheHit      bool
	Model         string
	TokensInput   int64
	TokensOutput  int64
	ExpenseCount  int
	RejectedCount int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SpreadsheetUpload is the bookkeeping record of an analyzed spreadsheet.
type SpreadsheetUpload struct {
	UploadID          string
	UserID            string
	Filename          string
	ChecksumSHA256    string
	SizeBytes         int64
	TotalRows         int
	ArchiveURI        string
	Status            string
	MappingConfidence float64
	CreatedAt         time.Time
}
