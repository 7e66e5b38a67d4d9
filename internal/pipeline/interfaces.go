package pipeline

import (
	"context"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

// Extractor sends a prompt to the extraction service and returns the parsed
// JSON object. *llm.Client implements it.
type Extractor interface {
	ExtractJSON(ctx context.Context, op string, turns []llm.Turn) (*llm.Result, error)
}

// ResponseCache memoizes chat extraction responses. *cache.RequestCache implements it.
type ResponseCache interface {
	Get(ctx context.Context, msg domain.ChatMessage) (*domain.NLPResponse, bool)
	Put(ctx context.Context, msg domain.ChatMessage, resp *domain.NLPResponse)
}

// RunRecorder persists audit records of pipeline runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.ExtractionRun) error
}

// UploadArchive stores the raw bytes of an analyzed spreadsheet and returns its URI.
type UploadArchive interface {
	Archive(ctx context.Context, checksum, filename string, data []byte) (string, error)
}

// UploadRecorder persists spreadsheet upload bookkeeping.
type UploadRecorder interface {
	RecordUpload(ctx context.Context, upload *domain.SpreadsheetUpload) error
	// FindUploadByChecksum returns nil when no upload with checksum exists.
	FindUploadByChecksum(ctx context.Context, checksum string) (*domain.SpreadsheetUpload, error)
}

type noopRecorder struct{}

func (noopRecorder) RecordRun(context.Context, *domain.ExtractionRun) error { return nil }

func (noopRecorder) RecordUpload(context.Context, *domain.SpreadsheetUpload) error { return nil }

func (noopRecorder) FindUploadByChecksum(context.Context, string) (*domain.SpreadsheetUpload, error) {
	return nil, nil
}
