package common

import (
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// sensitivePattern pairs a regex with the attribute keys it guards.
type sensitivePattern struct {
	regex       *regexp.Regexp
	replacement string
	keys        []string
}

// Patterns cover the shapes secrets take in request/response bodies,
// headers, and config dumps that end up in logs or audit lines.
var defaultSensitivePatterns = []sensitivePattern{
	{
		regex:       regexp.MustCompile(`(?i)(access[_-]?token|refresh[_-]?token|token)["'\s]*[:=]["'\s]*([^"',}\]\s]+)`),
		replacement: `${1}":"` + maskedValue + `"`,
		keys:        []string{"token", "access_token", "refresh_token", "access-token", "refresh-token"},
	},
	{
		regex:       regexp.MustCompile(`(?i)(client[_-]?secret|secret)["'\s]*[:=]["'\s]*([^"',}\]\s]+)`),
		replacement: `${1}":"` + maskedValue + `"`,
		keys:        []string{"secret", "client_secret", "client-secret"},
	},
	{
		regex:       regexp.MustCompile(`(?i)(password|passwd|api[_-]?key)["'\s]*[:=]["'\s]*([^"',}\]\s]+)`),
		replacement: `${1}":"` + maskedValue + `"`,
		keys:        []string{"password", "passwd", "api_key", "apikey", "api-key"},
	},
	{
		regex:       regexp.MustCompile(`(?i)(authorization)["'\s]*[:=]["'\s]*([^"',}\]\s]+)`),
		replacement: `${1}":"` + maskedValue + `"`,
		keys:        []string{"authorization"},
	},
	{
		regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		replacement: "Bearer " + maskedValue,
	},
	{
		regex:       regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		replacement: "Basic " + maskedValue,
	},
}

// Masker removes credential material from strings before they reach
// logs or audit sinks.
type Masker struct {
	patterns []sensitivePattern
	enabled  bool
}

// NewMasker creates a masker with the default pattern set
func NewMasker() *Masker {
	return &Masker{
		patterns: defaultSensitivePatterns,
		enabled:  true,
	}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}

	result := input
	for _, pattern := range m.patterns {
		result = pattern.regex.ReplaceAllString(result, pattern.replacement)
	}
	return result
}

// MaskValue masks a value when its key names a secret, otherwise
// applies the string patterns to the value itself.
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.enabled {
		return value
	}

	lowerKey := strings.ToLower(key)
	for _, pattern := range m.patterns {
		for _, sensitiveKey := range pattern.keys {
			if lowerKey == sensitiveKey {
				return maskedValue
			}
		}
	}

	if strValue, ok := value.(string); ok {
		return m.MaskString(strValue)
	}
	return value
}

// Global masker instance
var globalMasker = NewMasker()

// SetGlobalMasker sets the global masker instance
func SetGlobalMasker(masker *Masker) {
	globalMasker = masker
}

// GetGlobalMasker returns the global masker instance
func GetGlobalMasker() *Masker {
	return globalMasker
}

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}
