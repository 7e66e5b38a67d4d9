package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

// ColumnMapping aligns spreadsheet headers with canonical fields.
type ColumnMapping struct {
	Mapping    map[string]string // original header -> canonical field
	Confidence float64
}

// ColumnMapper asks the extraction service to map spreadsheet headers.
type ColumnMapper struct {
	extractor Extractor
}

// NewColumnMapper creates a ColumnMapper.
func NewColumnMapper(extractor Extractor) *ColumnMapper {
	return &ColumnMapper{extractor: extractor}
}

// MapColumns maps headers onto canonical fields using one extraction call.
// Entries whose key is not one of headers or whose value is not a canonical
// field are dropped.
func (m *ColumnMapper) MapColumns(ctx context.Context, headers []string, sample map[string]interface{}) (*ColumnMapping, error) {
	log := logger.FromContext(ctx)

	res, err := m.extractor.ExtractJSON(ctx, OpMapColumns, BuildColumnMappingPrompt(headers, sample))
	if err != nil {
		return nil, err
	}

	rawAny, ok := res.Payload["column_mapping"]
	if !ok {
		return nil, domain.Malformed(OpMapColumns, `reply has no "column_mapping" key`, nil)
	}
	raw, ok := rawAny.(map[string]interface{})
	if !ok && rawAny != nil {
		return nil, domain.Malformed(OpMapColumns, fmt.Sprintf(`"column_mapping" is %T, want object`, rawAny), nil)
	}

	known := make(map[string]string, len(headers))
	for _, h := range headers {
		known[h] = h
		known[strings.TrimSpace(h)] = h
	}

	mapping := make(map[string]string, len(raw))
	var dropped []string
	for k, v := range raw {
		header, ok := known[k]
		if !ok {
			header, ok = known[strings.TrimSpace(k)]
		}
		s, isString := v.(string)
		field, canonical := domain.IsCanonicalField(s)
		if !ok || !isString || !canonical {
			dropped = append(dropped, k)
			continue
		}
		mapping[header] = field
	}
	if len(dropped) > 0 {
		log.Warn().Strs("dropped", dropped).Msg("Discarded column mapping entries outside headers or canonical fields")
	}

	confidence, err := getConfidenceField(res.Payload, "confidence")
	if err != nil {
		log.Warn().Err(err).Msg("Unusable mapping confidence, using default")
		confidence = DefaultConfidence
	}

	return &ColumnMapping{Mapping: mapping, Confidence: confidence}, nil
}
