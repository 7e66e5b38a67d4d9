package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/moneychat-nlp/internal/api/middleware"
	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
	"github.com/dvloznov/moneychat-nlp/internal/metrics"
	"github.com/dvloznov/moneychat-nlp/internal/pipeline"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "nlp-service"

// Route paths.
const (
	PathHealth          = "/health"
	PathExtractExpense  = "/extract-expense"
	PathAnalyzeExcel    = "/analyze-excel"
	PathProcessExcelRow = "/process-excel-row"
	PathMetrics         = "/metrics"
)

// Extractor is the part of pipeline.Service the handlers use.
type Extractor interface {
	ExtractExpense(ctx context.Context, msg domain.ChatMessage) (*domain.NLPResponse, error)
	AnalyzeSpreadsheet(ctx context.Context, req pipeline.AnalyzeRequest) (*domain.ExcelAnalysisResponse, error)
	ProcessRow(ctx context.Context, req pipeline.RowRequest) (*domain.RowResult, error)
}

// Handler serves the extraction endpoints.
type Handler struct {
	svc Extractor
	log zerolog.Logger
	now func() time.Time
}

// New creates a new Handler.
func New(svc Extractor, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log, now: time.Now}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathHealth, h.method(http.MethodGet, h.Health))
	mux.HandleFunc(PathExtractExpense, h.method(http.MethodPost, h.ExtractExpense))
	mux.HandleFunc(PathAnalyzeExcel, h.method(http.MethodPost, h.AnalyzeExcel))
	mux.HandleFunc(PathProcessExcelRow, h.method(http.MethodPost, h.ProcessExcelRow))
	mux.Handle(PathMetrics, metrics.Handler())
	return mux
}

func (h *Handler) method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, domain.KindInput, "Method not allowed")
			return
		}
		next(w, r)
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"time":    h.now().Format(time.RFC3339),
	})
}

// ExtractExpense handles POST /extract-expense
func (h *Handler) ExtractExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatMessage
	if !h.decode(w, r, PathExtractExpense, &req) {
		return
	}

	resp, err := h.svc.ExtractExpense(r.Context(), req)
	h.respond(w, r, PathExtractExpense, resp, err)
}

// AnalyzeExcel handles POST /analyze-excel
func (h *Handler) AnalyzeExcel(w http.ResponseWriter, r *http.Request) {
	var req pipeline.AnalyzeRequest
	if !h.decode(w, r, PathAnalyzeExcel, &req) {
		return
	}

	resp, err := h.svc.AnalyzeSpreadsheet(r.Context(), req)
	h.respond(w, r, PathAnalyzeExcel, resp, err)
}

// ProcessExcelRow handles POST /process-excel-row
func (h *Handler) ProcessExcelRow(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RowRequest
	if !h.decode(w, r, PathProcessExcelRow, &req) {
		return
	}

	resp, err := h.svc.ProcessRow(r.Context(), req)
	h.respond(w, r, PathProcessExcelRow, resp, err)
}

// decode reads a JSON body into v, writing the error response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, endpoint string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		err = domain.Input(endpoint, "invalid request body", err)
		h.fail(w, r, endpoint, err)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, endpoint string, resp interface{}, err error) {
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	metrics.ObserveRequest(endpoint, "ok")
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	kind := domain.KindOf(err)
	metrics.ObserveRequest(endpoint, string(kind))

	log := h.requestLogger(r)
	status := middleware.StatusOf(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("endpoint", endpoint).Str("kind", string(kind)).Int("status", status).Msg("Request failed")

	middleware.WriteErrorFrom(w, err)
}

// requestLogger prefers the request-scoped logger set by middleware.
func (h *Handler) requestLogger(r *http.Request) zerolog.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return h.log
}
