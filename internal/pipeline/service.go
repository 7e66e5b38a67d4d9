package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
	"github.com/dvloznov/moneychat-nlp/internal/metrics"
	"github.com/dvloznov/moneychat-nlp/internal/sheet"
)

// Upload statuses.
const (
	UploadStatusMapped        = "MAPPED"
	UploadStatusMappingFailed = "MAPPING_FAILED"
)

// Service runs the three extraction entry points. It is safe for concurrent
// use; the only state shared between requests is the cache and the
// extraction client.
type Service struct {
	extractor Extractor
	cache     ResponseCache
	runs      RunRecorder
	uploads   UploadRecorder
	archive   UploadArchive
	policy    BatchPolicy
	loc       *time.Location
	now       func() time.Time

	uploadTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the response cache. Without one every request misses.
func WithCache(c ResponseCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRunRecorder sets where run audit records go.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) { s.runs = r }
}

// WithUploadRecorder sets where spreadsheet upload records go.
func WithUploadRecorder(r UploadRecorder) Option {
	return func(s *Service) { s.uploads = r }
}

// WithUploadArchive sets where analyzed spreadsheets are archived.
func WithUploadArchive(a UploadArchive) Option {
	return func(s *Service) { s.archive = a }
}

// WithUploadTimeout bounds the upload lookup, archive and record calls made
// while answering AnalyzeSpreadsheet.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) { s.uploadTimeout = d }
}

// WithBatchPolicy sets how invalid extracted items are handled.
func WithBatchPolicy(p BatchPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLocation sets the time zone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service around extractor.
func NewService(extractor Extractor, opts ...Option) *Service {
	s := &Service{
		extractor: extractor,
		cache:     noopCache{},
		runs:      noopRecorder{},
		uploads:   noopRecorder{},
		policy:    SkipInvalid,
		now:       time.Now,

		uploadTimeout: DefaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.FixedZone("KST", 9*60*60)
		}
		s.loc = loc
	}
	return s
}

// Today returns the current date in the service's time zone.
func (s *Service) Today() time.Time {
	return truncateDay(s.now().In(s.loc))
}

// ExtractExpense extracts expenses from one chat message.
func (s *Service) ExtractExpense(ctx context.Context, msg domain.ChatMessage) (*domain.NLPResponse, error) {
	ctx, log := withOp(ctx, OpExtractExpense, "user_id", msg.UserID, "session_id", msg.SessionID)

	if strings.TrimSpace(msg.Message) == "" {
		return nil, domain.Input(OpExtractExpense, "message is required", nil)
	}

	meter := &usageMeter{next: s.extractor}
	run := s.startRun(domain.RunKindChat, msg.UserID)
	run.SessionID = msg.SessionID

	state := &PipelineState{Message: msg, Today: s.Today()}
	err := NewExtractionPipeline(meter, s.cache, s.policy).Execute(ctx, state)

	run.CacheHit = state.CacheHit
	if state.Response != nil && !state.CacheHit {
		run.ExpenseCount = len(state.Response.Expenses)
		run.RejectedCount = len(state.Response.Rejected)
		metrics.ObserveExpenses(run.ExpenseCount, run.RejectedCount)
	}
	s.finishRun(ctx, run, meter, err)

	if err != nil {
		log.Error().Err(err).Str("stage", string(StageFailed)).Msg("Expense extraction failed")
		return nil, err
	}

	log.Info().
		Bool("cache_hit", state.CacheHit).
		Int("expenses", len(state.Response.Expenses)).
		Int("rejected", len(state.Response.Rejected)).
		Bool("clarification_needed", state.Response.ClarificationNeeded).
		Msg("Expense extraction complete")
	return state.Response, nil
}

// AnalyzeSpreadsheet decodes an uploaded spreadsheet and proposes a column
// mapping. The preview and row count are returned even when the mapping call
// fails; Success is then false and MappingError says why.
func (s *Service) AnalyzeSpreadsheet(ctx context.Context, req AnalyzeRequest) (*domain.ExcelAnalysisResponse, error) {
	ctx, log := withOp(ctx, OpAnalyzeSpreadsheet, "user_id", req.UserID)

	data, err := decodeBase64(req.FileContent)
	if err != nil {
		return nil, domain.Input(OpDecodeSpreadsheet, "file_content is not valid base64", err)
	}

	tbl, err := sheet.Read(data, req.Filename)
	if err != nil {
		return nil, err
	}

	sample := map[string]interface{}{}
	if tbl.Len() > 0 {
		sample = tbl.Row(0)
	}

	meter := &usageMeter{next: s.extractor}
	run := s.startRun(domain.RunKindSpreadsheet, req.UserID)

	resp := &domain.ExcelAnalysisResponse{
		ColumnMapping: map[string]string{},
		PreviewData:   tbl.Preview(sheet.PreviewSize),
		TotalRows:     tbl.Len(),
	}

	mapping, mapErr := NewColumnMapper(meter).MapColumns(ctx, tbl.Headers, sample)
	if mapErr != nil {
		log.Warn().Err(mapErr).Msg("Column mapping failed, returning preview only")
		resp.MappingError = domain.BodyOf(mapErr)
	} else {
		resp.Success = true
		resp.ColumnMapping = mapping.Mapping
		resp.Confidence = mapping.Confidence
	}
	s.finishRun(ctx, run, meter, mapErr)

	s.recordUpload(ctx, req, data, resp)

	log.Info().
		Str("filename", req.Filename).
		Int("total_rows", resp.TotalRows).
		Int("mapped_columns", len(resp.ColumnMapping)).
		Bool("success", resp.Success).
		Msg("Spreadsheet analysis complete")
	return resp, nil
}

// ProcessRow converts one spreadsheet row into an ExpenseInfo.
func (s *Service) ProcessRow(ctx context.Context, req RowRequest) (*domain.RowResult, error) {
	ctx, _ = withOp(ctx, OpProcessSpreadsheetRow)

	if req.RowData == nil {
		return nil, domain.Input(OpProcessSpreadsheetRow, "row_data is required", nil)
	}
	if req.ColumnMapping == nil {
		return nil, domain.Input(OpProcessSpreadsheetRow, "column_mapping is required", nil)
	}

	meter := &usageMeter{next: s.extractor}
	run := s.startRun(domain.RunKindRow, "")

	info, err := NewRowClassifier(meter).ClassifyRow(ctx, req.RowData, req.ColumnMapping, s.Today())
	if err == nil {
		run.ExpenseCount = 1
	}
	s.finishRun(ctx, run, meter, err)
	if err != nil {
		return nil, err
	}

	return &domain.RowResult{Success: true, ExpenseInfo: info}, nil
}

func (s *Service) startRun(kind, userID string) *domain.ExtractionRun {
	return &domain.ExtractionRun{
		RunID:     uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		StartedAt: s.now(),
	}
}

// finishRun completes and records run. Recording failures are logged only.
func (s *Service) finishRun(ctx context.Context, run *domain.ExtractionRun, meter *usageMeter, err error) {
	run.FinishedAt = s.now()
	run.Status = domain.RunStatusSuccess
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorKind = domain.KindOf(err)
		run.ErrorMessage = err.Error()
	}
	run.Model, run.TokensInput, run.TokensOutput = meter.totals()

	if recErr := s.runs.RecordRun(ctx, run); recErr != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(recErr).Str("run_id", run.RunID).Msg("Failed to record extraction run")
	}
}

// recordUpload archives the spreadsheet bytes (once per checksum) and records
// the upload within the upload timeout. Failures are logged only.
func (s *Service) recordUpload(ctx context.Context, req AnalyzeRequest, data []byte, resp *domain.ExcelAnalysisResponse) {
	log := logger.FromContext(ctx)

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	upload := &domain.SpreadsheetUpload{
		UploadID:          uuid.NewString(),
		UserID:            req.UserID,
		Filename:          req.Filename,
		ChecksumSHA256:    checksum,
		SizeBytes:         int64(len(data)),
		TotalRows:         resp.TotalRows,
		Status:            UploadStatusMapped,
		MappingConfidence: resp.Confidence,
		CreatedAt:         s.now(),
	}
	if !resp.Success {
		upload.Status = UploadStatusMappingFailed
	}

	existing, err := s.uploads.FindUploadByChecksum(ctx, checksum)
	if err != nil {
		log.Warn().Err(err).Str("checksum", checksum).Msg("Upload lookup failed")
	}
	switch {
	case existing != nil && existing.ArchiveURI != "":
		upload.ArchiveURI = existing.ArchiveURI
	case s.archive != nil:
		uri, err := s.archive.Archive(ctx, checksum, req.Filename, data)
		if err != nil {
			log.Warn().Err(err).Str("checksum", checksum).Msg("Failed to archive spreadsheet")
		}
		upload.ArchiveURI = uri
	}

	if err := s.uploads.RecordUpload(ctx, upload); err != nil {
		log.Warn().Err(err).Str("upload_id", upload.UploadID).Msg("Failed to record spreadsheet upload")
	}
}

// withOp scopes the request logger to op and any extra fields.
func withOp(ctx context.Context, op string, fields ...interface{}) (context.Context, zerolog.Logger) {
	f := map[string]interface{}{"op": op}
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok {
			f[k] = fields[i+1]
		}
	}
	log := logger.WithFields(logger.FromContext(ctx), f)
	return logger.WithContext(ctx, log), log
}

// decodeBase64 accepts standard base64 with or without padding, ignoring
// whitespace and an optional data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i != -1 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	s = strings.Join(strings.Fields(s), "")
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// usageMeter tallies model and token usage over one request's extraction calls.
type usageMeter struct {
	next Extractor

	mu    sync.Mutex
	model string
	usage llm.Usage
}

func (m *usageMeter) ExtractJSON(ctx context.Context, op string, turns []llm.Turn) (*llm.Result, error) {
	res, err := m.next.ExtractJSON(ctx, op, turns)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.model = res.Model
	m.usage.InputTokens += res.Usage.InputTokens
	m.usage.OutputTokens += res.Usage.OutputTokens
	m.mu.Unlock()
	return res, nil
}

func (m *usageMeter) totals() (string, int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model, m.usage.InputTokens, m.usage.OutputTokens
}

type noopCache struct{}

func (noopCache) Get(context.Context, domain.ChatMessage) (*domain.NLPResponse, bool) {
	return nil, false
}

func (noopCache) Put(context.Context, domain.ChatMessage, *domain.NLPResponse) {}
