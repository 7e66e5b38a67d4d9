package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
	"github.com/dvloznov/moneychat-nlp/internal/llm/llmtest"
	"github.com/dvloznov/moneychat-nlp/internal/pipeline"
)

func TestColumnMapper_MapColumns(t *testing.T) {
	headers := []string{"거래일", "출금액", "적요", "Unnamed: 3"}

	tests := []struct {
		name     string
		reply    string
		want     map[string]string
		wantConf float64
		wantKind domain.Kind
	}{
		{
			name:     "canonical values kept",
			reply:    `{"column_mapping": {"거래일": "date", "출금액": "Amount", "적요": "description"}, "confidence": 0.9}`,
			want:     map[string]string{"거래일": "date", "출금액": "amount", "적요": "description"},
			wantConf: 0.9,
		},
		{
			name:     "foreign keys and values dropped",
			reply:    `{"column_mapping": {"거래일": "day", "없음": "memo", "적요": 3, " 출금액 ": "amount"}}`,
			want:     map[string]string{"출금액": "amount"},
			wantConf: pipeline.DefaultConfidence,
		},
		{
			name:     "confidence clamped",
			reply:    `{"column_mapping": {}, "confidence": -2}`,
			want:     map[string]string{},
			wantConf: 0,
		},
		{
			name:     "missing mapping",
			reply:    `{"confidence": 0.9}`,
			wantKind: domain.KindMalformedResponse,
		},
		{
			name:     "mapping is a list",
			reply:    `{"column_mapping": ["date"]}`,
			wantKind: domain.KindMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapper := pipeline.NewColumnMapper(llm.NewClient(llmtest.NewFake(tt.reply)))
			got, err := mapper.MapColumns(context.Background(), headers, map[string]interface{}{"거래일": "2024-06-01"})
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Mapping)
			assert.Equal(t, tt.wantConf, got.Confidence)
		})
	}
}

func TestBuildColumnMappingPrompt(t *testing.T) {
	turns := pipeline.BuildColumnMappingPrompt([]string{"일자", "금액"}, map[string]interface{}{"금액": 5000.0, "일자": "2024-06-01"})
	require.Len(t, turns, 2)
	assert.Equal(t, llm.RoleSystem, turns[0].Role)
	assert.Contains(t, turns[1].Text, `["일자","금액"]`)
	assert.Contains(t, turns[1].Text, `[{"일자":"2024-06-01"},{"금액":5000}]`)
	for _, f := range domain.CanonicalFields {
		assert.Contains(t, turns[1].Text, "- "+f+":")
	}
}

func TestBuildClassificationPrompt(t *testing.T) {
	turns := pipeline.BuildClassificationPrompt("아메리카노", "스타벅스")
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Text, "내용: 아메리카노")
	assert.Contains(t, turns[1].Text, "장소: 스타벅스")
	assert.Contains(t, turns[1].Text, "식비, 교통, 문화/여가, 쇼핑, 주거/통신, 건강/의료")
}
