package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidExpression is returned when an expression contains a character
// outside the allow-list.
var ErrInvalidExpression = errors.New("expression contains forbidden characters")

// expressionSymbols are the non-alphanumeric characters an expression may
// contain.
const expressionSymbols = "+-*/^()[]{},.= _<>"

// SanitizeExpression trims text, rewrites ^ to ** and rejects anything
// outside letters, digits and expressionSymbols. It does not parse.
func SanitizeExpression(text string) (string, error) {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if isExpressionRune(r) {
			continue
		}
		return "", fmt.Errorf("%w: %q at position %d", ErrInvalidExpression, r, i+1)
	}
	return strings.ReplaceAll(text, "^", "**"), nil
}

func isExpressionRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return r < 0x80 && strings.ContainsRune(expressionSymbols, r)
}

// telegramTokenPattern matches bot API tokens (<bot id>:<secret>) as they
// appear in request URLs and error messages.
var telegramTokenPattern = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

// RedactSecrets removes bot tokens from messages before they are logged.
func RedactSecrets(msg string) string {
	return telegramTokenPattern.ReplaceAllString(msg, "[REDACTED]")
}

// MaskSecret masks a secret for logging purposes
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	if len(secret) <= 8 {
		return "****"
	}

	return secret[:4] + "****" + secret[len(secret)-4:]
}
