package algebra

import (
	"fmt"
	"strings"
)

// Engine bundles the operations a front-end needs. It holds no state and
// is safe for concurrent use.
type Engine struct{}

// NewEngine returns a ready Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Parse parses a sanitized expression.
func (e *Engine) Parse(src string) (Expr, error) {
	return Parse(src)
}

// FreeVariables lists the variables of x in display-name order.
func (e *Engine) FreeVariables(x Expr) []string {
	return FreeVariables(x)
}

// EvaluateNumeric evaluates a constant expression.
func (e *Engine) EvaluateNumeric(x Expr) (float64, error) {
	if vars := FreeVariables(x); len(vars) > 0 {
		return 0, fmt.Errorf("%w: free variables %s", ErrNotConstant, strings.Join(vars, ", "))
	}
	return Evaluate(x)
}

// Simplify returns the normal form of x.
func (e *Engine) Simplify(x Expr) (Expr, error) {
	return Simplify(x)
}

// Solve solves eq for v.
func (e *Engine) Solve(eq *Equation, v string) ([]Expr, error) {
	if v == "" {
		return nil, ErrNoVariable
	}
	return Solve(eq, v)
}

// Format renders x.
func (e *Engine) Format(x Expr) string {
	return Format(x)
}

// FormatNumber renders a numeric result.
func (e *Engine) FormatNumber(v float64) string {
	return FormatFloat(v)
}

// FormatSolutions renders a solution list.
func (e *Engine) FormatSolutions(sols []Expr) string {
	return FormatSolutions(sols)
}
