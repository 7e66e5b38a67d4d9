package domain

import "strings"

// Canonical spreadsheet fields a column may be mapped to.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldPlace       = "place"
	FieldMemo        = "memo"
)

// CanonicalFields lists the mapping targets in prompt order.
var CanonicalFields = []string{
	FieldDate,
	FieldAmount,
	FieldDescription,
	FieldCategory,
	FieldPlace,
	FieldMemo,
}

// Expense categories the extraction service is asked to choose from.
const (
	CategoryFood      = "식비"
	CategoryTransport = "교통"
	CategoryLeisure   = "문화/여가"
	CategoryShopping  = "쇼핑"
	CategoryHousing   = "주거/통신"
	CategoryHealth    = "건강/의료"

	// CategoryOther is used when the service returns no category at all.
	CategoryOther = "기타"
)

// Categories is the fixed six-member taxonomy. The service may still answer
// with free text; callers do not enforce membership.
var Categories = []string{
	CategoryFood,
	CategoryTransport,
	CategoryLeisure,
	CategoryShopping,
	CategoryHousing,
	CategoryHealth,
}

// IsCanonicalField reports whether name (after trimming and lowercasing) is one
// of the six canonical fields, returning the normalized name.
func IsCanonicalField(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, f := range CanonicalFields {
		if n == f {
			return f, true
		}
	}
	return "", false
}
