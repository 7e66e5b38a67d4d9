package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

// ValidateExpense converts one untrusted extracted item into an ExpenseInfo.
// The returned error is always a ValidationError.
func ValidateExpense(raw interface{}, ref time.Time) (domain.ExpenseInfo, error) {
	info, err := validateItem(raw, ref)
	if err != nil {
		return domain.ExpenseInfo{}, domain.Validation(OpValidateExpense, "invalid item", err)
	}
	return info, nil
}

// ValidateExpenses validates a batch of extracted items in order. Under
// SkipInvalid bad items are reported in rejected; under AbortOnInvalid the
// first bad item fails the batch. A batch in which every item is invalid
// fails under either policy.
func ValidateExpenses(items []interface{}, ref time.Time, policy BatchPolicy) ([]domain.ExpenseInfo, []domain.RejectedItem, error) {
	expenses := make([]domain.ExpenseInfo, 0, len(items))
	var rejected []domain.RejectedItem

	for i, item := range items {
		info, err := validateItem(item, ref)
		if err != nil {
			if policy == AbortOnInvalid {
				return nil, nil, domain.Validation(OpValidateExpense, fmt.Sprintf("item %d", i), err)
			}
			rejected = append(rejected, domain.RejectedItem{Index: i, Reason: err.Error()})
			continue
		}
		expenses = append(expenses, info)
	}

	if len(expenses) == 0 && len(rejected) > 0 {
		return nil, rejected, domain.Validation(OpValidateExpense,
			fmt.Sprintf("all %d extracted items are invalid", len(rejected)),
			fmt.Errorf("first: %s", rejected[0].Reason))
	}

	return expenses, rejected, nil
}

func validateItem(raw interface{}, ref time.Time) (domain.ExpenseInfo, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return domain.ExpenseInfo{}, fmt.Errorf("item is %T, want object", raw)
	}

	amountAny, ok := obj["amount"]
	if !ok || amountAny == nil {
		return domain.ExpenseInfo{}, fmt.Errorf("missing required field %q", "amount")
	}
	amount, err := parseAmount(amountAny)
	if err != nil {
		return domain.ExpenseInfo{}, fmt.Errorf("field %q: %w", "amount", err)
	}

	dateStr, err := getOptionalStringField(obj, "date")
	if err != nil {
		return domain.ExpenseInfo{}, err
	}
	date := ref
	if dateStr != nil {
		date = ResolveDate(*dateStr, ref)
	}

	categoryPtr, err := getOptionalStringField(obj, "category")
	if err != nil {
		return domain.ExpenseInfo{}, err
	}
	category := domain.CategoryOther
	if categoryPtr != nil {
		if c := normalizeCategory(*categoryPtr); c != "" {
			category = c
		}
	}

	isIncome, err := getBoolField(obj, "is_income")
	if err != nil {
		return domain.ExpenseInfo{}, err
	}

	confidence, err := getConfidenceField(obj, "confidence")
	if err != nil {
		return domain.ExpenseInfo{}, err
	}

	info := domain.ExpenseInfo{
		Date:       FormatDate(date),
		Amount:     math.Abs(amount),
		Category:   category,
		IsIncome:   isIncome,
		Confidence: confidence,
	}

	for key, dst := range map[string]*string{
		"subcategory":    &info.Subcategory,
		"place":          &info.Place,
		"memo":           &info.Memo,
		"payment_method": &info.PaymentMethod,
	} {
		v, err := getOptionalStringField(obj, key)
		if err != nil {
			return domain.ExpenseInfo{}, err
		}
		if v != nil {
			*dst = *v
		}
	}

	return info, nil
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getBoolField(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("field %q has value %v, want boolean", key, v)
}

func getConfidenceField(m map[string]interface{}, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return DefaultConfidence, nil
	}
	f, err := parseAmount(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return clampConfidence(f), nil
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return DefaultConfidence
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// parseAmount accepts JSON numbers and numeric strings. Strings may carry
// thousands separators, a currency mark and the Korean units 천, 만 and 억
// ("5천원", "1만5천", "1억 2천만원").
func parseAmount(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		d, err := parseKoreanAmount(val)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	default:
		return 0, fmt.Errorf("has type %T, want number", v)
	}
}

var (
	thousand       = decimal.NewFromInt(1_000)
	tenThousand    = decimal.NewFromInt(10_000)
	hundredMillion = decimal.NewFromInt(100_000_000)
)

var amountCleaner = strings.NewReplacer(",", "", "원", "", "₩", "", " ", "", "\t", "")

func parseKoreanAmount(s string) (decimal.Decimal, error) {
	clean := amountCleaner.Replace(strings.TrimSpace(s))
	neg := false
	switch {
	case strings.HasPrefix(clean, "-"):
		neg = true
		clean = clean[1:]
	case strings.HasPrefix(clean, "+"):
		clean = clean[1:]
	}
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", s)
	}

	total, section := decimal.Zero, decimal.Zero
	var digits strings.Builder

	flush := func() (decimal.Decimal, bool, error) {
		if digits.Len() == 0 {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(digits.String())
		digits.Reset()
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		return d, true, nil
	}

	for _, r := range clean {
		switch {
		case r >= '0' && r <= '9', r == '.':
			digits.WriteRune(r)
		case r == '천':
			n, ok, err := flush()
			if err != nil {
				return decimal.Zero, err
			}
			if !ok {
				n = decimal.NewFromInt(1)
			}
			section = section.Add(n.Mul(thousand))
		case r == '만', r == '억':
			n, ok, err := flush()
			if err != nil {
				return decimal.Zero, err
			}
			if !ok && section.IsZero() {
				n = decimal.NewFromInt(1)
			}
			unit := tenThousand
			if r == '억' {
				unit = hundredMillion
			}
			total = total.Add(section.Add(n).Mul(unit))
			section = decimal.Zero
		default:
			return decimal.Zero, fmt.Errorf("invalid amount %q", s)
		}
	}

	n, ok, err := flush()
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		section = section.Add(n)
	}

	result := total.Add(section)
	if neg {
		result = result.Neg()
	}
	return result, nil
}
