// Package algebra is the symbolic math capability behind SmartMath.
// It parses short expressions, evaluates constant ones numerically,
// brings symbolic ones into a rational normal form and solves
// polynomial equations with exact (surd and complex) roots.
package algebra

import (
	"math/big"
	"sort"
)

// Expr is a node of an expression tree.
type Expr interface {
	isExpr()
}

// Num is a rational literal. Approx marks values that came from a
// decimal literal and are displayed as floats.
type Num struct {
	Val    *big.Rat
	Approx bool
}

// Sym is a free variable.
type Sym struct {
	Name string
}

// Const is a named mathematical constant (pi, E).
type Const struct {
	Name string
}

// Add is a sum of terms.
type Add struct {
	Terms []Expr
}

// Mul is a product of factors.
type Mul struct {
	Factors []Expr
}

// Pow raises Base to Exp. Division is expressed as Pow{x, -1}.
type Pow struct {
	Base Expr
	Exp  Expr
}

// Neg is unary minus.
type Neg struct {
	X Expr
}

// Call applies a known function to its arguments.
type Call struct {
	Func string
	Args []Expr
}

// Surd is an exact root of a quadratic: Real + Coef*sqrt(Radicand),
// multiplied by the imaginary unit when Imag is set.
type Surd struct {
	Real     *big.Rat
	Coef     *big.Rat
	Radicand *big.Int
	Imag     bool
	Approx   bool
}

// Equation is Left = Right.
type Equation struct {
	Left  Expr
	Right Expr
}

func (*Num) isExpr()      {}
func (*Sym) isExpr()      {}
func (*Const) isExpr()    {}
func (*Add) isExpr()      {}
func (*Mul) isExpr()      {}
func (*Pow) isExpr()      {}
func (*Neg) isExpr()      {}
func (*Call) isExpr()     {}
func (*Surd) isExpr()     {}
func (*Equation) isExpr() {}

// NewInt returns an exact integer literal.
func NewInt(v int64) *Num {
	return &Num{Val: new(big.Rat).SetInt64(v)}
}

func newRat(r *big.Rat, approx bool) *Num {
	return &Num{Val: new(big.Rat).Set(r), Approx: approx}
}

// FreeVariables returns the names of the symbols in e, sorted by name.
// Constants such as pi are not variables.
func FreeVariables(e Expr) []string {
	seen := make(map[string]struct{})
	collectSymbols(e, seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func collectSymbols(e Expr, seen map[string]struct{}) {
	switch n := e.(type) {
	case *Sym:
		seen[n.Name] = struct{}{}
	case *Add:
		for _, t := range n.Terms {
			collectSymbols(t, seen)
		}
	case *Mul:
		for _, f := range n.Factors {
			collectSymbols(f, seen)
		}
	case *Pow:
		collectSymbols(n.Base, seen)
		collectSymbols(n.Exp, seen)
	case *Neg:
		collectSymbols(n.X, seen)
	case *Call:
		for _, a := range n.Args {
			collectSymbols(a, seen)
		}
	case *Equation:
		collectSymbols(n.Left, seen)
		collectSymbols(n.Right, seen)
	}
}

func containsVariable(e Expr, name string) bool {
	seen := make(map[string]struct{})
	collectSymbols(e, seen)
	_, ok := seen[name]
	return ok
}
