package pipeline

import (
	"fmt"
	"strings"
)

// BatchPolicy decides what happens when one extracted item fails validation.
type BatchPolicy int

const (
	// SkipInvalid drops the bad item, reports it in NLPResponse.Rejected and
	// keeps the rest of the batch.
	SkipInvalid BatchPolicy = iota
	// AbortOnInvalid fails the whole request on the first bad item.
	AbortOnInvalid
)

func (p BatchPolicy) String() string {
	switch p {
	case AbortOnInvalid:
		return "abort"
	default:
		return "skip"
	}
}

// ParseBatchPolicy parses "skip" or "abort". An empty string selects SkipInvalid.
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipInvalid, nil
	case "abort":
		return AbortOnInvalid, nil
	default:
		return SkipInvalid, fmt.Errorf("unknown batch policy %q (want skip or abort)", s)
	}
}

// AnalyzeRequest is the input of the spreadsheet analysis path.
type AnalyzeRequest struct {
	FileContent string `json:"file_content"` // base64
	Filename    string `json:"filename"`
	UserID      string `json:"user_id"`
}

// RowRequest is the input of the per-row path.
type RowRequest struct {
	RowData       map[string]interface{} `json:"row_data"`
	ColumnMapping map[string]string      `json:"column_mapping"`
}
