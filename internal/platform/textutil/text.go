package textutil

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	lowerCaser   = cases.Lower(language.Und)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// CleanText strips markup, applies NFKC normalisation and collapses whitespace runs.
func CleanText(value string) string {
	value = norm.NFKC.String(value)
	value = html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.TrimSpace(spaceRun.ReplaceAllString(value, " "))
}

// NormalizeEmail lower-cases and NFKC-normalises an address without validating it.
func NormalizeEmail(value string) string {
	return lowerCaser.String(norm.NFKC.String(strings.TrimSpace(value)))
}

// IsEmail applies a deliberately loose local@domain.tld check.
func IsEmail(value string) bool {
	return emailPattern.MatchString(value)
}

// NormalizeStringMap trims keys and values, removing entries with empty keys or values.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
