package chat

import (
	"strings"
)

// DefaultQuickEvalMaxLength is the exclusive length bound for idle-mode
// quick evaluation.
const DefaultQuickEvalMaxLength = 200

// arithmeticChars mark free text as a likely expression.
const arithmeticChars = "+-*/^()"

// Class is the outcome of Classify.
type Class int

const (
	// Unrecognized text gets the generic reply.
	Unrecognized Class = iota
	// Command text starts with a slash.
	Command
	// LikelyExpression text is quick-evaluated.
	LikelyExpression
)

func (c Class) String() string {
	switch c {
	case Command:
		return "command"
	case LikelyExpression:
		return "likely_expression"
	}
	return "unrecognized"
}

// Classify sorts free text: a leading slash is a command; text holding an
// arithmetic character and shorter than maxLen is a likely expression.
func Classify(text string, maxLen int) Class {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "/"):
		return Command
	case strings.ContainsAny(text, arithmeticChars) && len([]rune(text)) < maxLen:
		return LikelyExpression
	}
	return Unrecognized
}

// ParseCommand splits "/cmd@botname args" into the lower-case command name
// and its arguments. ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}

	token, rest, _ := strings.Cut(text[1:], " ")
	token, _, _ = strings.Cut(token, "@")
	if token == "" {
		return "", "", false
	}
	return strings.ToLower(token), strings.TrimSpace(rest), true
}
