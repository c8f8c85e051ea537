package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aixgo-dev/smartmath/pkg/algebra"
	"github.com/aixgo-dev/smartmath/pkg/security"
)

// Engine is the math capability the dispatcher depends on.
type Engine interface {
	Parse(src string) (algebra.Expr, error)
	FreeVariables(x algebra.Expr) []string
	EvaluateNumeric(x algebra.Expr) (float64, error)
	Simplify(x algebra.Expr) (algebra.Expr, error)
	Solve(eq *algebra.Equation, v string) ([]algebra.Expr, error)
	Format(x algebra.Expr) string
	FormatNumber(v float64) string
	FormatSolutions(sols []algebra.Expr) string
}

var _ Engine = (*algebra.Engine)(nil)

// solution is the outcome of solving an equation.
type solution struct {
	variable string
	result   string
}

// quickResult is the outcome of idle-mode evaluation. ok is false for
// expressions that are not constant.
type quickResult struct {
	value string
	ok    bool
}

// isUserError reports failures caused by the input rather than the system.
func isUserError(err error) bool {
	var pe *algebra.ParseError
	return errors.As(err, &pe) ||
		errors.Is(err, security.ErrInvalidExpression) ||
		errors.Is(err, algebra.ErrNotConstant) ||
		errors.Is(err, algebra.ErrNoVariable) ||
		errors.Is(err, algebra.ErrUnsolvable) ||
		errors.Is(err, algebra.ErrDomain)
}

func (d *Dispatcher) parse(text string) (algebra.Expr, error) {
	normalized, err := security.SanitizeExpression(text)
	if err != nil {
		return nil, err
	}
	return d.engine.Parse(normalized)
}

func (d *Dispatcher) parseEquation(text string) (*algebra.Equation, error) {
	left, right, _ := strings.Cut(text, "=")
	l, err := d.parse(left)
	if err != nil {
		return nil, err
	}
	r, err := d.parse(right)
	if err != nil {
		return nil, err
	}
	return &algebra.Equation{Left: l, Right: r}, nil
}

// solveFirst solves eq for its first free variable.
func (d *Dispatcher) solveFirst(eq *algebra.Equation) (solution, error) {
	vars := d.engine.FreeVariables(eq)
	if len(vars) == 0 {
		return solution{}, algebra.ErrNoVariable
	}
	sols, err := d.engine.Solve(eq, vars[0])
	if err != nil {
		return solution{}, err
	}
	return solution{variable: vars[0], result: d.engine.FormatSolutions(sols)}, nil
}

// solveText solves "lhs = rhs" for the first free variable.
func (d *Dispatcher) solveText(text string) (solution, error) {
	eq, err := d.parseEquation(text)
	if err != nil {
		return solution{}, err
	}
	return d.solveFirst(eq)
}

// evaluateText returns the numeric value of a constant expression and the
// simplified form otherwise.
func (d *Dispatcher) evaluateText(text string) (string, error) {
	x, err := d.parse(text)
	if err != nil {
		return "", err
	}
	if len(d.engine.FreeVariables(x)) == 0 {
		v, err := d.engine.EvaluateNumeric(x)
		if err != nil {
			return "", err
		}
		return d.engine.FormatNumber(v), nil
	}
	simplified, err := d.engine.Simplify(x)
	if err != nil {
		return "", err
	}
	return d.engine.Format(simplified), nil
}

func (d *Dispatcher) quickEvaluate(text string) (quickResult, error) {
	x, err := d.parse(text)
	if err != nil {
		return quickResult{}, err
	}
	if len(d.engine.FreeVariables(x)) > 0 {
		return quickResult{}, nil
	}
	v, err := d.engine.EvaluateNumeric(x)
	if err != nil {
		return quickResult{}, err
	}
	return quickResult{value: d.engine.FormatNumber(v), ok: true}, nil
}

// resolveEntry solves a history request again: equations as stored, bare
// expressions as expr = 0.
func (d *Dispatcher) resolveEntry(request string) (string, error) {
	if strings.Contains(request, "=") {
		sol, err := d.solveText(request)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Solve for %s: %s", sol.variable, sol.result), nil
	}

	x, err := d.parse(request)
	if err != nil {
		return "", err
	}
	sol, err := d.solveFirst(&algebra.Equation{Left: x, Right: algebra.NewInt(0)})
	if errors.Is(err, algebra.ErrNoVariable) {
		return NoVariableText, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Solve %s=0 for %s: %s", request, sol.variable, sol.result), nil
}
