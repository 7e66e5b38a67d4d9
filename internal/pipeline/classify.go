package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

// maxExcelSerial is 9999-12-31 as an Excel date serial.
const maxExcelSerial = 2958465

// RowClassifier turns one mapped spreadsheet row into an ExpenseInfo.
type RowClassifier struct {
	extractor Extractor
}

// NewRowClassifier creates a RowClassifier.
func NewRowClassifier(extractor Extractor) *RowClassifier {
	return &RowClassifier{extractor: extractor}
}

// ClassifyRow applies mapping to row, asks the extraction service for a
// category, and validates the assembled record.
//
// The income flag comes from the extraction service when it answers one;
// otherwise a positive amount is income, following the usual bank export
// sign convention. The stored amount is always the magnitude.
func (c *RowClassifier) ClassifyRow(ctx context.Context, row map[string]interface{}, mapping map[string]string, ref time.Time) (domain.ExpenseInfo, error) {
	log := logger.FromContext(ctx)
	mapped := applyMapping(row, mapping)

	description := cellText(mapped[domain.FieldDescription])
	place := cellText(mapped[domain.FieldPlace])

	res, err := c.extractor.ExtractJSON(ctx, OpClassifyRow, BuildClassificationPrompt(description, place))
	if err != nil {
		return domain.ExpenseInfo{}, err
	}

	amount := 0.0
	if v, ok := mapped[domain.FieldAmount]; ok && v != nil {
		if a, err := parseAmount(v); err == nil {
			amount = a
		} else {
			log.Warn().Err(err).Interface("amount", v).Msg("Unparseable row amount, using 0")
		}
	}

	isIncome := amount > 0
	if v, ok := res.Payload["is_income"]; ok && v != nil {
		if b, err := getBoolField(res.Payload, "is_income"); err == nil {
			isIncome = b
		}
	}

	// Anything but a non-blank string falls back to the sheet's column.
	category, _ := res.Payload["category"].(string)
	if strings.TrimSpace(category) == "" {
		category = cellText(mapped[domain.FieldCategory])
	}

	memo := cellText(mapped[domain.FieldMemo])
	if memo == "" {
		memo = description
	}

	item := map[string]interface{}{
		"amount":     amount,
		"category":   category,
		"place":      place,
		"memo":       memo,
		"is_income":  isIncome,
		"confidence": res.Payload["confidence"],
	}
	if d := dateText(mapped[domain.FieldDate]); d != "" {
		item["date"] = d
	}

	info, err := ValidateExpense(item, ref)
	if err != nil {
		return domain.ExpenseInfo{}, err
	}
	return info, nil
}

// applyMapping renames row keys to canonical fields. Mapping entries whose
// target is not canonical, or whose column is absent from row, are ignored.
func applyMapping(row map[string]interface{}, mapping map[string]string) map[string]interface{} {
	mapped := make(map[string]interface{}, len(mapping))
	for original, target := range mapping {
		field, ok := domain.IsCanonicalField(target)
		if !ok {
			continue
		}
		if v, ok := row[original]; ok {
			mapped[field] = v
		}
	}
	return mapped
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// dateText renders a date cell as text. Numeric cells are read as Excel date serials.
func dateText(v interface{}) string {
	if f, ok := v.(float64); ok && f >= 1 && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return FormatDate(t)
		}
	}
	return cellText(v)
}
