package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/cache"
	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

const extractionPromptTemplate = `당신은 한국어 가계부 입력을 분석하는 전문 AI입니다.

사용자의 자연어 입력에서 다음 정보를 정확히 추출하세요:

1. **날짜**: 상대적 표현('어제', '그저께', '3일 전', '지난주 화요일' 등)을 정확한 날짜로 변환
2. **금액**: 숫자와 단위 인식 ('5천원', '만원', '50000원' 등)
3. **카테고리**: 내용을 기반으로 적절한 카테고리 추론
4. **장소/상점**: 구체적인 장소명이나 상점명
5. **메모**: 추가 정보나 상황 설명
6. **수입/지출**: 맥락을 통해 판단
7. **결제수단**: 언급된 경우 추출

**카테고리 기준:**
%s

**특별 지시:**
- 한 문장에 여러 지출이 있으면 각각 분리
- 확실하지 않은 정보는 confidence를 낮게 설정
- 금액이 명확하지 않으면 clarification 요청
- 날짜는 반드시 YYYY-MM-DD 형식으로 출력
- 오늘 날짜: %s

응답은 반드시 다음 형식의 JSON 객체로만 제공하세요:
{
  "expenses": [
    {
      "date": "YYYY-MM-DD",
      "amount": 5000,
      "category": "식비",
      "subcategory": "",
      "place": "",
      "memo": "",
      "is_income": false,
      "payment_method": "",
      "confidence": 0.9
    }
  ],
  "clarification_needed": false,
  "clarification_message": null
}`

var categoryExamples = map[string]string{
	domain.CategoryFood:      "음식, 카페, 레스토랑, 마트 등",
	domain.CategoryTransport: "지하철, 버스, 택시, 주유 등",
	domain.CategoryLeisure:   "영화, 도서, 여행, 스포츠 등",
	domain.CategoryShopping:  "의류, 생활용품, 화장품 등",
	domain.CategoryHousing:   "관리비, 인터넷, 휴대폰 등",
	domain.CategoryHealth:    "병원, 약국, 건강식품 등",
}

// BuildExtractionPrompt assembles the turns for a chat extraction: one system
// instruction carrying today's date, the trailing context window in its
// original order, then the current message.
func BuildExtractionPrompt(today time.Time, history []string, message string) []llm.Turn {
	var cats strings.Builder
	for i, c := range domain.Categories {
		if i > 0 {
			cats.WriteString("\n")
		}
		fmt.Fprintf(&cats, "- %s: %s", c, categoryExamples[c])
	}

	window := cache.TrailingContext(history)
	turns := make([]llm.Turn, 0, len(window)+2)
	turns = append(turns, llm.Turn{
		Role: llm.RoleSystem,
		Text: fmt.Sprintf(extractionPromptTemplate, cats.String(), FormatDate(today)),
	})
	for _, c := range window {
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: c})
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Text: message})
	return turns
}

// BuildColumnMappingPrompt asks the extraction service to map spreadsheet
// headers onto the canonical fields.
func BuildColumnMappingPrompt(headers []string, sample map[string]interface{}) []llm.Turn {
	var b strings.Builder
	b.WriteString("다음 엑셀 파일의 컬럼명들을 분석하여 가계부 필드와 매핑해주세요.\n\n")
	fmt.Fprintf(&b, "컬럼명: %s\n", mustJSON(headers))
	fmt.Fprintf(&b, "첫 번째 행 데이터: %s\n\n", mustJSON(orderedSample(headers, sample)))
	b.WriteString("표준 필드:\n")
	b.WriteString("- date: 날짜\n")
	b.WriteString("- amount: 금액\n")
	b.WriteString("- description: 내용/설명\n")
	b.WriteString("- category: 카테고리\n")
	b.WriteString("- place: 장소\n")
	b.WriteString("- memo: 메모\n\n")
	b.WriteString("규칙:\n")
	b.WriteString("- 매핑의 키는 위 컬럼명 중 하나와 정확히 일치해야 합니다.\n")
	b.WriteString("- 매핑의 값은 표준 필드명 중 하나여야 합니다.\n")
	b.WriteString("- 해당하는 표준 필드가 없는 컬럼은 생략하세요.\n\n")
	b.WriteString("JSON 형식으로 매핑 결과를 반환하세요:\n")
	b.WriteString(`{"column_mapping": {"원본컬럼명": "표준필드명"}, "confidence": 0.95}`)

	return []llm.Turn{
		{Role: llm.RoleSystem, Text: "당신은 엑셀 데이터 분석 전문가입니다."},
		{Role: llm.RoleUser, Text: b.String()},
	}
}

// BuildClassificationPrompt asks for one category for a spreadsheet row.
func BuildClassificationPrompt(description, place string) []llm.Turn {
	var b strings.Builder
	b.WriteString("다음 정보를 바탕으로 적절한 카테고리를 추천해주세요:\n\n")
	fmt.Fprintf(&b, "내용: %s\n", description)
	fmt.Fprintf(&b, "장소: %s\n\n", place)
	fmt.Fprintf(&b, "카테고리 옵션: %s\n\n", strings.Join(domain.Categories, ", "))
	b.WriteString("수입인지 지출인지 판단할 수 있으면 is_income도 포함하세요.\n\n")
	b.WriteString(`JSON 형식으로 응답: {"category": "카테고리명", "confidence": 0.95, "is_income": false}`)

	return []llm.Turn{
		{Role: llm.RoleSystem, Text: "당신은 가계부 카테고리 분류 전문가입니다."},
		{Role: llm.RoleUser, Text: b.String()},
	}
}

// orderedSample keeps the sample row's keys in header order so the prompt is stable.
func orderedSample(headers []string, sample map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sample))
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if v, ok := sample[h]; ok {
			out = append(out, map[string]interface{}{h: v})
			seen[h] = true
		}
	}
	var rest []string
	for k := range sample {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, map[string]interface{}{k: sample[k]})
	}
	return out
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
