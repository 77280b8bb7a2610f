package validator

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	nullByteRegex   = regexp.MustCompile(`\x00`)
)

// Sanitize removes null bytes, trims the input and collapses runs of
// whitespace to a single space.
func Sanitize(input string) string {
	input = nullByteRegex.ReplaceAllString(input, "")
	input = strings.TrimSpace(input)
	return multiSpaceRegex.ReplaceAllString(input, " ")
}

// StripHTML removes all HTML tags
func StripHTML(input string) string {
	return htmlTagRegex.ReplaceAllString(input, "")
}

// SanitizeName is applied to every user supplied display name.
func SanitizeName(input string) string {
	return Sanitize(StripHTML(input))
}

// SanitizeText cleans free text such as descriptions. Line breaks are kept.
func SanitizeText(input string) string {
	input = nullByteRegex.ReplaceAllString(input, "")
	return strings.TrimSpace(StripHTML(input))
}

// SanitizeOptional applies fn to *input when it is set.
func SanitizeOptional(input *string, fn func(string) string) *string {
	if input == nil {
		return nil
	}
	v := fn(*input)
	return &v
}
