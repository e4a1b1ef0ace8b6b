package model

import "strings"

// KnownCategories is the catalogue offered by pickers. Other labels are accepted as-is.
var KnownCategories = []string{
	"ENGINEERING", "NURSING", "PROGRAMMING", "MATHEMATICS", "PHYSICS",
	"CHEMISTRY", "BIOLOGY", "PSYCHOLOGY", "ART_DESIGN", "MUSIC",
	"LITERATURE", "HISTORY", "SOCIOLOGY", "PHILOSOPHY", "EDUCATION",
	"MARKETING", "BUSINESS_MANAGEMENT", "FINANCE", "LEGAL_STUDIES",
	"LANGUAGES", "HEALTH_WELLNESS", "DATA_SCIENCE", "MACHINE_LEARNING",
}

// NormalizeCategory trims the label and maps display names such as
// "Business Management" onto the catalogue entry.
func NormalizeCategory(raw string) string {
	trimmed := strings.TrimSpace(raw)
	key := strings.ToUpper(strings.ReplaceAll(trimmed, " ", "_"))
	for _, known := range KnownCategories {
		if key == known {
			return known
		}
	}
	return trimmed
}

// CategoryDisplayName turns BUSINESS_MANAGEMENT into "Business Management".
func CategoryDisplayName(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		lower := strings.ToLower(w)
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}
