package utils

import (
	"regexp"
	"strings"
)

var (
	notificationNumPattern = regexp.MustCompile(`^41\d{8}$`)
	mapLinkPattern         = regexp.MustCompile(`^https?://((www\.)?google\.[a-z.]+/maps|maps\.google\.[a-z.]+|maps\.app\.goo\.gl|goo\.gl/maps)(/|\?|$)`)
)

// NormalizeEquipmentNumber trims whitespace and upper-cases the number so
// "eq-100 " and "EQ-100" compare equal.
func NormalizeEquipmentNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeNotificationNum strips spaces and dashes operators tend to type.
func NormalizeNotificationNum(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	return normalized
}

// ValidNotificationNum reports whether num is exactly 10 digits starting with 41.
func ValidNotificationNum(num string) bool {
	return notificationNumPattern.MatchString(num)
}

// ValidMapLink reports whether raw points at a map provider.
func ValidMapLink(raw string) bool {
	return mapLinkPattern.MatchString(strings.TrimSpace(raw))
}

// TrimOptional returns nil for nil or blank input, otherwise the trimmed value.
func TrimOptional(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil
	}
	return &v
}
