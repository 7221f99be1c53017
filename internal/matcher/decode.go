package matcher

import (
	"encoding/base64"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DecodeContent returns the page markup carried by content. Content made only
// of base64 characters is decoded; content wrapped in a Python bytes literal
// (b'...') is unwrapped and decoded. Anything that does not decode to
// printable UTF-8 text is returned unchanged.
func DecodeContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return content
	}
	if isBase64(trimmed) {
		if decoded, ok := decodeBase64(trimmed); ok {
			return decoded
		}
	}
	if strings.Contains(content, "b'") {
		stripped := strings.TrimSpace(strings.ReplaceAll(content, "b'", ""))
		stripped = strings.TrimSuffix(stripped, "'")
		if decoded, ok := decodeBase64(stripped); ok {
			return decoded
		}
	}
	return content
}

func isBase64(s string) bool {
	for _, r := range s {
		if !isBase64Rune(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isBase64Rune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		r == '+' || r == '/' || r == '-' || r == '_' || r == '='
}

// decodeBase64 is lenient like the usual codec helpers: whitespace is ignored,
// both alphabets are accepted and padding is optional.
func decodeBase64(s string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == '-':
			return '+'
		case r == '_':
			return '/'
		}
		return r
	}, s)
	cleaned = strings.TrimRight(cleaned, "=")
	if cleaned == "" || !isBase64(cleaned) {
		return "", false
	}

	raw, err := base64.RawStdEncoding.DecodeString(cleaned)
	if err != nil || !printable(raw) {
		return "", false
	}
	return string(raw), true
}

// printable reports whether b is UTF-8 text without control characters other
// than whitespace, which rules out plain words that happen to be valid base64.
func printable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
