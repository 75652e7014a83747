package logger

import (
	"regexp"
	"strings"
)

// sensitiveValuePatterns match credentials embedded in free-form strings such as broker URLs.
var sensitiveValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\w+://[^:/@\s]+:)([^@\s]+)(@)`),
	regexp.MustCompile(`(?i)((token|secret|passw(or)?d|dsn)[\s:=]+)([^;,\s]{5,})`),
}

// sensitiveKeywords mark field keys whose values are never logged.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "dsn", "credential",
}

// RedactSensitiveData replaces embedded credentials with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	input = sensitiveValuePatterns[0].ReplaceAllString(input, "$1[REDACTED]$3")
	return sensitiveValuePatterns[1].ReplaceAllString(input, "$1[REDACTED]")
}

// isSensitiveKey reports whether a field key names a secret.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
