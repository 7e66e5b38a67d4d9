package pipeline

import "time"

// Defaults applied when the extraction service omits a value or the
// caller leaves a setting unset.
const (
	// DefaultTimezone is the zone "today" is computed in.
	DefaultTimezone = "Asia/Seoul"

	// DefaultConfidence is used when a reply carries no confidence.
	DefaultConfidence = 0.8

	// DefaultUpstreamTimeout bounds a single extraction service call.
	DefaultUpstreamTimeout = 60 * time.Second

	// DefaultUploadTimeout bounds the upload bookkeeping done on the
	// AnalyzeSpreadsheet request path.
	DefaultUploadTimeout = 10 * time.Second
)

// Operation names used in errors, logs and metrics.
const (
	OpExtractExpense        = "ExtractExpense"
	OpAnalyzeSpreadsheet    = "AnalyzeSpreadsheet"
	OpMapColumns            = "MapColumns"
	OpClassifyRow           = "ClassifyRow"
	OpValidateExpense       = "ValidateExpense"
	OpDecodeSpreadsheet     = "DecodeSpreadsheet"
	OpProcessSpreadsheetRow = "ProcessRow"
)
