package chat

import (
	"fmt"
	"strings"

	"github.com/aixgo-dev/smartmath/pkg/session"
)

// Fixed reply texts.
const (
	StartText = "Small+SmartMath Bot\n" +
		"Commands:\n" +
		"/calc — calculate or simplify an expression\n" +
		"/history — show recent calculations\n" +
		"/help — short help\n\n" +
		"After /calc send an expression like: 2+2, sin(pi/4), x^2-2=0"

	HelpText = "Usage:\n" +
		"/calc → then send expression\n" +
		"/history → view recent entries\n" +
		"You can reuse results with inline buttons."

	CalcPromptText    = "Send the expression to evaluate or solve (use ^ or ** for powers)."
	RateLimitedText   = "Too fast, slow down a bit."
	NotUnderstoodText = "I didn't understand. Use /calc to evaluate or /help."
	EmptyHistoryText  = "History is empty."
	EntryNotFoundText = "Entry not found."
	NoVariableText    = "No variable to solve for."
)

// Button labels.
const (
	LabelReuse   = "Reuse"
	LabelSolve   = "Solve for x"
	LabelHistory = "History"
)

// CommandInfo describes a command for platform registration.
type CommandInfo struct {
	Name        string
	Description string
}

// Commands lists the commands the bot answers to, in menu order.
func Commands() []CommandInfo {
	return []CommandInfo{
		{Name: "start", Description: "Start the bot"},
		{Name: "calc", Description: "Evaluate or solve an expression"},
		{Name: "history", Description: "Show recent calculations"},
		{Name: "help", Description: "Help"},
	}
}

// ActionKeyboard returns the buttons attached to a fresh result: reuse and
// solve bound to index, history listing from the newest entry.
func ActionKeyboard(user int64, index int) [][]Button {
	return [][]Button{
		{
			{Label: LabelReuse, Payload: Payload{Action: ActionReuse, User: user, Index: index}.Encode()},
			{Label: LabelSolve, Payload: Payload{Action: ActionSolve, User: user, Index: index}.Encode()},
		},
		{
			{Label: LabelHistory, Payload: Payload{Action: ActionHistory, User: user, Index: 0}.Encode()},
		},
	}
}

// FormatHistory renders entries one per line, numbered from offset+1.
func FormatHistory(entries []session.HistoryEntry, offset int) string {
	if len(entries) == 0 {
		return EmptyHistoryText
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%d. %s → %s", offset+i+1, e.Request, e.Result)
	}
	return strings.Join(lines, "\n")
}
