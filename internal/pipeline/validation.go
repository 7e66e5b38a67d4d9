package pipeline

import (
	"strings"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

// categoryIndex maps a comparison key to the canonical category name.
var categoryIndex = func() map[string]string {
	idx := make(map[string]string, len(domain.Categories)+1)
	for _, c := range domain.Categories {
		idx[categoryKey(c)] = c
	}
	idx[categoryKey(domain.CategoryOther)] = domain.CategoryOther
	return idx
}()

// normalizeCategory snaps near-miss spellings of a canonical category
// ("문화 / 여가", " 식비 ") onto the canonical name. Free text that matches no
// canonical category is returned trimmed; blank input yields "".
func normalizeCategory(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if c, ok := categoryIndex[categoryKey(trimmed)]; ok {
		return c
	}
	return trimmed
}

// IsCanonicalCategory reports whether name is one of the six canonical categories.
func IsCanonicalCategory(name string) bool {
	c, ok := categoryIndex[categoryKey(name)]
	return ok && c != domain.CategoryOther
}

// categoryKey normalizes a category name for comparison: whitespace is
// dropped and Latin letters are folded to upper case.
func categoryKey(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), ""))
}
