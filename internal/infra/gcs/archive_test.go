package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestArchive(w *memWriter, gotObject *string) *Archive {
	return &Archive{
		bucket: "moneychat-uploads",
		newWriter: func(ctx context.Context, bucket, object string) io.WriteCloser {
			*gotObject = object
			return w
		},
	}
}

func TestArchive_Archive(t *testing.T) {
	w := &memWriter{}
	var object string
	a := newTestArchive(w, &object)

	uri, err := a.Archive(context.Background(), "abc123", "가계부.xlsx", []byte("PK\x03\x04data"))
	require.NoError(t, err)

	assert.Equal(t, "uploads/abc123/가계부.xlsx", object)
	assert.Equal(t, "gs://moneychat-uploads/uploads/abc123/가계부.xlsx", uri)
	assert.Equal(t, "PK\x03\x04data", w.String())
	assert.True(t, w.closed)
}

func TestArchive_FinalizeError(t *testing.T) {
	w := &memWriter{closeErr: errors.New("permission denied")}
	var object string
	a := newTestArchive(w, &object)

	uri, err := a.Archive(context.Background(), "abc123", "a.csv", []byte("x"))
	assert.Error(t, err)
	assert.Empty(t, uri)
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"a.xlsx", "uploads/sum/a.xlsx"},
		{"dir/sub/a.xlsx", "uploads/sum/a.xlsx"},
		{`C:\Users\me\a.xls`, "uploads/sum/a.xls"},
		{"", "uploads/sum/upload"},
		{"  ", "uploads/sum/upload"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectName("sum", tt.filename))
		})
	}
}

func TestNewArchive_RequiresBucket(t *testing.T) {
	_, err := NewArchive(context.Background(), "")
	assert.Error(t, err)
}
