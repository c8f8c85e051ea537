package algebra

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := Parse(src)
	require.NoError(t, err, "parse %q", src)
	return e
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{"empty", "", 0},
		{"blank", "   ", 0},
		{"dangling operator", "2+", 2},
		{"unclosed paren", "(2", 0},
		{"mismatched bracket", "(2]", 2},
		{"stray equals", "x=1", 1},
		{"relational", "2 < 3", 2},
		{"function without call", "sin", 0},
		{"unknown function", "foo(2)", 0},
		{"implicit multiplication", "2 3", 2},
		{"too many args", "sin(1, 2)", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, tt.pos, perr.Pos)
		})
	}
}

func TestParse_ErrorMessage(t *testing.T) {
	_, err := Parse("2+")
	require.Error(t, err)
	assert.Equal(t, "parse error at position 3: unexpected end of expression", err.Error())
}

func TestFreeVariables(t *testing.T) {
	assert.Equal(t, []string{"x", "y"}, FreeVariables(mustParse(t, "y + x*pi")))
	assert.Empty(t, FreeVariables(mustParse(t, "2*pi + E")))
	assert.Equal(t, []string{"a", "b"}, FreeVariables(&Equation{
		Left:  mustParse(t, "b"),
		Right: mustParse(t, "a + 1"),
	}))
}

func TestEvaluateNumeric(t *testing.T) {
	eng := NewEngine()
	tests := []struct {
		input string
		want  string
	}{
		{"2+2", "4.0"},
		{"2**10", "1024.0"},
		{"sqrt(16)", "4.0"},
		{"10/4", "2.5"},
		{"-3 + 1", "-2.0"},
		{"1.5*2", "3.0"},
		{"abs(-7)", "7.0"},
		{"[1 + {2}] * 3", "9.0"},
		{"1e-5", "1e-05"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := eng.EvaluateNumeric(mustParse(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatFloat(v))
		})
	}

	v, err := eng.EvaluateNumeric(mustParse(t, "sin(pi/4)"))
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/2, v, 1e-12)
}

func TestEvaluateNumeric_Errors(t *testing.T) {
	eng := NewEngine()

	_, err := eng.EvaluateNumeric(mustParse(t, "x + 1"))
	assert.ErrorIs(t, err, ErrNotConstant)

	_, err = eng.EvaluateNumeric(mustParse(t, "1/0"))
	assert.ErrorIs(t, err, ErrDomain)

	_, err = eng.EvaluateNumeric(mustParse(t, "sqrt(-1)"))
	assert.ErrorIs(t, err, ErrDomain)

	_, err = eng.EvaluateNumeric(mustParse(t, "log(0)"))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"x+1", "x + 1"},
		{"x - 5", "x - 5"},
		{"x*x", "x**2"},
		{"(x+1)**2", "x**2 + 2*x + 1"},
		{"x - x", "0"},
		{"x/2 + x/2", "x"},
		{"3*x/2", "3*x/2"},
		{"1/x", "1/x"},
		{"(x**2-1)/(x-1)", "x + 1"},
		{"(x**2 - 1)/(x + 1)", "x - 1"},
		{"sqrt(8)*x", "2*sqrt(2)*x"},
		{"sqrt(2)*sqrt(2)", "2"},
		{"-(x + 1)", "-x - 1"},
		{"sin(0) + x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Simplify(mustParse(t, tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestSimplify_DivisionByZero(t *testing.T) {
	_, err := Simplify(mustParse(t, "x/0"))
	assert.ErrorIs(t, err, ErrDomain)
}

func TestSimplify_LargePowerStaysUnexpanded(t *testing.T) {
	got, err := Simplify(mustParse(t, "(x+1)**40"))
	require.NoError(t, err)
	assert.Equal(t, "(x + 1)**40", Format(got))
}

func TestSolve(t *testing.T) {
	tests := []struct {
		left, right string
		want        string
	}{
		{"x**2-4", "0", "[-2, 2]"},
		{"x-5", "0", "[5]"},
		{"2*x + 1", "0", "[-1/2]"},
		{"x**2 - 2", "0", "[-sqrt(2), sqrt(2)]"},
		{"x**2 + 1", "0", "[-I, I]"},
		{"x**2 + 2*x + 5", "0", "[-1 - 2*I, -1 + 2*I]"},
		{"x**3 - 6*x**2 + 11*x - 6", "0", "[1, 2, 3]"},
		{"x**2", "x", "[0, 1]"},
		{"x + 1", "x", "[]"},
		{"1/x", "0", "[]"},
		{"(x**2-1)/(x-1)", "0", "[-1]"},
		{"a*x + b", "0", "[-b/a]"},
	}

	for _, tt := range tests {
		t.Run(tt.left+"="+tt.right, func(t *testing.T) {
			eq := &Equation{Left: mustParse(t, tt.left), Right: mustParse(t, tt.right)}
			sols, err := Solve(eq, "x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatSolutions(sols))
		})
	}
}

func TestSolve_Unsupported(t *testing.T) {
	eq := &Equation{Left: mustParse(t, "sin(x)"), Right: mustParse(t, "0")}
	_, err := Solve(eq, "x")
	assert.ErrorIs(t, err, ErrUnsolvable)

	eq = &Equation{Left: mustParse(t, "x**3 + x + 1"), Right: mustParse(t, "0")}
	_, err = Solve(eq, "x")
	assert.ErrorIs(t, err, ErrUnsolvable)
}

func TestEngine_SolveWithoutVariable(t *testing.T) {
	eng := NewEngine()
	_, err := eng.Solve(&Equation{Left: NewInt(1), Right: NewInt(2)}, "")
	assert.ErrorIs(t, err, ErrNoVariable)
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{4, "4.0"},
		{0.5, "0.5"},
		{-2, "-2.0"},
		{0, "0.0"},
		{1e-5, "1e-05"},
		{1e16, "1e+16"},
		{123.456, "123.456"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in))
	}
}
