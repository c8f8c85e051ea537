package algebra

import (
	"fmt"
	"math"
	"math/big"
)

// Evaluate computes a constant expression as a float64. Any free variable
// yields ErrNotConstant.
func Evaluate(e Expr) (float64, error) {
	v, err := eval(e)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: result is not a real number", ErrDomain)
	}
	return v, nil
}

func eval(e Expr) (float64, error) {
	switch n := e.(type) {
	case *Num:
		f, _ := n.Val.Float64()
		return f, nil
	case *Sym:
		return 0, fmt.Errorf("%w: free variable %s", ErrNotConstant, n.Name)
	case *Const:
		if n.Name == "pi" {
			return math.Pi, nil
		}
		return math.E, nil
	case *Neg:
		v, err := eval(n.X)
		return -v, err
	case *Add:
		sum := 0.0
		for _, t := range n.Terms {
			v, err := eval(t)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case *Mul:
		prod := 1.0
		for _, f := range n.Factors {
			v, err := eval(f)
			if err != nil {
				return 0, err
			}
			prod *= v
		}
		return prod, nil
	case *Pow:
		return evalPow(n)
	case *Call:
		return evalCall(n)
	case *Surd:
		if n.Imag {
			return 0, fmt.Errorf("%w: result is not a real number", ErrDomain)
		}
		re, _ := n.Real.Float64()
		c, _ := n.Coef.Float64()
		m, _ := new(big.Float).SetInt(n.Radicand).Float64()
		return re + c*math.Sqrt(m), nil
	case *Equation:
		return 0, fmt.Errorf("%w: equation has no value", ErrNotConstant)
	}
	return 0, fmt.Errorf("unsupported expression %T", e)
}

func evalPow(n *Pow) (float64, error) {
	base, err := eval(n.Base)
	if err != nil {
		return 0, err
	}
	exp, err := eval(n.Exp)
	if err != nil {
		return 0, err
	}
	if base == 0 && exp < 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	// Odd roots of negative numbers stay real, as in cbrt.
	if base < 0 && exp != math.Trunc(exp) {
		if q, ok := n.Exp.(*Num); ok && !q.Val.IsInt() && q.Val.Denom().Bit(0) == 1 {
			root := -math.Pow(-base, 1/float64(q.Val.Denom().Int64()))
			return math.Pow(root, float64(q.Val.Num().Int64())), nil
		}
	}
	return math.Pow(base, exp), nil
}

func evalCall(n *Call) (float64, error) {
	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		v, err := eval(a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	x := args[0]
	switch n.Func {
	case "sin":
		return math.Sin(x), nil
	case "cos":
		return math.Cos(x), nil
	case "tan":
		return math.Tan(x), nil
	case "asin":
		return math.Asin(x), nil
	case "acos":
		return math.Acos(x), nil
	case "atan":
		return math.Atan(x), nil
	case "sinh":
		return math.Sinh(x), nil
	case "cosh":
		return math.Cosh(x), nil
	case "tanh":
		return math.Tanh(x), nil
	case "exp":
		return math.Exp(x), nil
	case "abs":
		return math.Abs(x), nil
	case "log":
		if x == 0 {
			return 0, fmt.Errorf("%w: log of zero", ErrDomain)
		}
		if len(args) == 2 {
			if args[1] <= 0 || args[1] == 1 {
				return 0, fmt.Errorf("%w: invalid logarithm base", ErrDomain)
			}
			return math.Log(x) / math.Log(args[1]), nil
		}
		return math.Log(x), nil
	}
	return 0, fmt.Errorf("unknown function %s", n.Func)
}
