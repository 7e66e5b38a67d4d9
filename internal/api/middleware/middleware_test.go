package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", domain.Input("op", "bad", nil), http.StatusBadRequest},
		{"validation", domain.Validation("op", "bad", nil), http.StatusUnprocessableEntity},
		{"malformed", domain.Malformed("op", "bad", nil), http.StatusBadGateway},
		{"upstream", domain.Upstream("op", errors.New("down")), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("outer: %w", domain.Input("op", "bad", nil)), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestWriteErrorFrom(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorFrom(rec, domain.Upstream("ExtractJSON", errors.New("timeout")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body domain.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.KindUpstream, body.Kind)
	assert.Contains(t, body.Message, "timeout")
}

func TestRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewWithWriter(buf)

	var seen string
	h := RequestID(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(RequestIDHeader)
		log := logger.FromContext(r.Context())
		log.Info().Msg("inside")
	}))

	t.Run("generated", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := rec.Header().Get(RequestIDHeader)
		require.NotEmpty(t, id)
		assert.Equal(t, id, seen)
		assert.Contains(t, buf.String(), id)
	})

	t.Run("propagated", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
		assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	})
}

func TestRecovery(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)
	h := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/extract-expense", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body domain.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.KindInternal, body.Kind)
}

func TestLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewWithWriter(buf)
	h := Logger(log)(RequestID(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/health"`)
	assert.Contains(t, out, `"request_id":"abc"`)
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/extract-expense", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789abcdef")))

	require.Error(t, readErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(readErr))
}
