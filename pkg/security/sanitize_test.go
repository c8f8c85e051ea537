package security

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeExpression(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "2+2", "2+2"},
		{"trims whitespace", "  x + 1 \n", "x + 1"},
		{"caret becomes power", "x^2-4=0", "x**2-4=0"},
		{"keeps double star", "2**3", "2**3"},
		{"brackets and comma", "log(8, 2) + [1] + {2}", "log(8, 2) + [1] + {2}"},
		{"relational characters pass", "x < 2", "x < 2"},
		{"underscore and dot", "x_1 * 0.5", "x_1 * 0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeExpression(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeExpression_Rejects(t *testing.T) {
	inputs := []string{
		"2+2; rm -rf",
		"__import__('os')",
		"x\ty",
		"2 & 3",
		"√2",
		"x!",
		"a\"b",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := SanitizeExpression(input)
			assert.True(t, errors.Is(err, ErrInvalidExpression), "expected ErrInvalidExpression, got %v", err)
		})
	}
}

func TestSanitizeExpression_ReportsCharacter(t *testing.T) {
	_, err := SanitizeExpression("2+2; rm -rf")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "';'"), err.Error())
}

func TestRedactSecrets(t *testing.T) {
	msg := `Post "https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage": timeout`
	got := RedactSecrets(msg)
	assert.NotContains(t, got, "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw")
	assert.Contains(t, got, "[REDACTED]")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "1234****wxyz", MaskSecret("1234567890abcdwxyz"))
}
