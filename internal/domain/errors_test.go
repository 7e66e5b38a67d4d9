package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"upstream", Upstream("ExtractJSON", cause), KindUpstream},
		{"malformed", Malformed("ExtractJSON", "not json", nil), KindMalformedResponse},
		{"validation", Validation("ValidateExpense", "amount missing", nil), KindValidation},
		{"input", Input("decode", "bad base64", cause), KindInput},
		{"wrapped", fmt.Errorf("extract: %w", Upstream("ExtractJSON", cause)), KindUpstream},
		{"plain error", cause, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Upstream("Generate", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Generate: boom", err.Error())
}

func TestBodyOf(t *testing.T) {
	assert.Nil(t, BodyOf(nil))

	body := BodyOf(Input("decode", "file_content is not valid base64", nil))
	assert.Equal(t, KindInput, body.Kind)
	assert.Contains(t, body.Message, "base64")
}

func TestIsCanonicalField(t *testing.T) {
	got, ok := IsCanonicalField("  Amount ")
	assert.True(t, ok)
	assert.Equal(t, FieldAmount, got)

	_, ok = IsCanonicalField("price")
	assert.False(t, ok)
}
