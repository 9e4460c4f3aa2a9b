package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor scrubs PII and credentials from log values.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternEmail       = "email"
	PatternSSN         = "ssn"
	PatternCreditCard  = "credit_card"
	PatternPassword    = "password"
)

// sensitiveKeys are attribute names whose values are always masked
// outright, regardless of content.
var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"authorization",
	"private_key", "privatekey",
}

// NewRedactor creates a Redactor with the built-in pattern set.
func NewRedactor() *Redactor {
	specs := []struct {
		name        string
		regex       string
		replacement string
	}{
		{PatternAPIKey, `(sk-[a-zA-Z0-9]+|api[-_]?key[-_:]\s*[a-zA-Z0-9]+)`, "sk-***"},
		{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
		{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
		{PatternSSN, `\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`, "***-**-****"},
		{PatternCreditCard, `\b(?:\d[ -]*?){13,16}\b`, "****-****-****-****"},
		{PatternPassword, `(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***"},
	}

	r := &Redactor{}
	for _, spec := range specs {
		r.patterns = append(r.patterns, redactPattern{
			name:        spec.name,
			regex:       regexp.MustCompile(spec.regex),
			replacement: spec.replacement,
		})
	}
	return r
}

// RedactString scrubs PII from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactAttr scrubs a slog attribute. Values under sensitive key names
// are masked entirely; other string values go through the pattern set.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
