package compliance

import "strings"

// placeholderTokens are the exact values treated as placeholders,
// case-insensitive.
var placeholderTokens = map[string]bool{
	"":            true,
	"tbd":         true,
	"tbc":         true,
	"pending":     true,
	"placeholder": true,
	"n/a":         true,
	"na":          true,
	"null":        true,
}

// IsPlaceholder reports whether a value is a placeholder: it contains a
// "-CNT-" synthetic marker or matches one of the known tokens.
func IsPlaceholder(value string) bool {
	v := strings.TrimSpace(value)
	if strings.Contains(strings.ToUpper(v), "-CNT-") {
		return true
	}
	return placeholderTokens[strings.ToLower(v)]
}
