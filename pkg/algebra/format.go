package algebra

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	precAdd  = 10
	precNeg  = 15
	precMul  = 20
	precPow  = 30
	precAtom = 40
)

// Format renders e on a single line in the usual computer-algebra
// notation: x**2 + 2*x + 1, sqrt(2), 3*x/2.
func Format(e Expr) string {
	switch n := e.(type) {
	case *Num:
		return formatNum(n)
	case *Sym:
		return n.Name
	case *Const:
		return n.Name
	case *Neg:
		return "-" + paren(n.X, precMul)
	case *Add:
		return formatAdd(n)
	case *Mul:
		return formatMul(n.Factors)
	case *Pow:
		return formatPow(n)
	case *Call:
		return formatCall(n)
	case *Surd:
		return formatSurd(n)
	case *Equation:
		return "Eq(" + Format(n.Left) + ", " + Format(n.Right) + ")"
	}
	return "?"
}

// FormatSolutions renders a solution list as [a, b].
func FormatSolutions(sols []Expr) string {
	parts := make([]string, len(sols))
	for i, s := range sols {
		parts[i] = Format(s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatFloat prints f the way Python's repr does: 4.0, 0.5, 1e-05.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if a := math.Abs(f); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func precedence(e Expr) int {
	switch n := e.(type) {
	case *Num:
		switch {
		case n.Val.Sign() < 0:
			return precNeg
		case !n.Approx && !n.Val.IsInt():
			return precMul
		}
		return precAtom
	case *Neg:
		return precNeg
	case *Add:
		return precAdd
	case *Mul:
		return precMul
	case *Pow:
		if q, ok := n.Exp.(*Num); ok && !q.Approx {
			if q.Val.Sign() < 0 {
				return precMul
			}
			if q.Val.Cmp(big.NewRat(1, 2)) == 0 {
				return precAtom
			}
		}
		return precPow
	case *Surd:
		if n.Approx {
			if n.Imag || n.Real.Sign() < 0 || n.Coef.Sign() < 0 {
				return precAdd
			}
			return precAtom
		}
		if n.Real.Sign() != 0 {
			return precAdd
		}
		if n.Coef.Sign() < 0 {
			return precNeg
		}
		return precMul
	case *Equation:
		return precAtom
	}
	return precAtom
}

func paren(e Expr, min int) string {
	s := Format(e)
	if precedence(e) < min {
		return "(" + s + ")"
	}
	return s
}

func formatNum(n *Num) string {
	if n.Approx {
		f, _ := n.Val.Float64()
		return FormatFloat(f)
	}
	return n.Val.RatString()
}

func formatAdd(n *Add) string {
	var b strings.Builder
	for i, t := range n.Terms {
		if i == 0 {
			b.WriteString(paren(t, precNeg))
			continue
		}
		switch x := t.(type) {
		case *Neg:
			b.WriteString(" - ")
			b.WriteString(paren(x.X, precAdd+1))
		case *Num:
			if x.Val.Sign() < 0 {
				b.WriteString(" - ")
				b.WriteString(formatNum(&Num{Val: new(big.Rat).Neg(x.Val), Approx: x.Approx}))
				continue
			}
			b.WriteString(" + ")
			b.WriteString(formatNum(x))
		default:
			b.WriteString(" + ")
			b.WriteString(paren(t, precAdd+1))
		}
	}
	return b.String()
}

func formatMul(factors []Expr) string {
	var num []string
	var den []Expr
	for _, f := range factors {
		switch x := f.(type) {
		case *Num:
			if x.Approx || x.Val.IsInt() {
				if x.Approx || x.Val.Cmp(big.NewRat(1, 1)) != 0 {
					num = append(num, paren(x, precMul))
				}
				continue
			}
			if !(x.Val.Num().IsInt64() && x.Val.Num().Int64() == 1) {
				num = append(num, x.Val.Num().String())
			}
			den = append(den, &Num{Val: new(big.Rat).SetInt(x.Val.Denom())})
			continue
		case *Pow:
			if q, ok := x.Exp.(*Num); ok && !q.Approx && q.Val.Sign() < 0 {
				pos := new(big.Rat).Neg(q.Val)
				var d Expr = x.Base
				if pos.Cmp(big.NewRat(1, 1)) != 0 {
					d = &Pow{Base: x.Base, Exp: &Num{Val: pos}}
				}
				den = append(den, d)
				continue
			}
		}
		num = append(num, paren(f, precMul))
	}

	out := "1"
	if len(num) > 0 {
		out = strings.Join(num, "*")
		if num[0] == "(-1)" && len(num) > 1 {
			out = "-" + strings.Join(num[1:], "*")
		}
	}
	switch len(den) {
	case 0:
		return out
	case 1:
		return out + "/" + paren(den[0], precPow)
	}
	parts := make([]string, len(den))
	for i, d := range den {
		parts[i] = paren(d, precMul)
	}
	return out + "/(" + strings.Join(parts, "*") + ")"
}

func formatPow(n *Pow) string {
	if q, ok := n.Exp.(*Num); ok && !q.Approx {
		if q.Val.Sign() < 0 {
			return formatMul([]Expr{n})
		}
		if q.Val.Cmp(big.NewRat(1, 2)) == 0 {
			return "sqrt(" + Format(n.Base) + ")"
		}
	}
	return paren(n.Base, precPow+1) + "**" + paren(n.Exp, precPow)
}

func formatCall(n *Call) string {
	name := n.Func
	if name == "abs" {
		name = "Abs"
	}
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = Format(a)
	}
	return name + "(" + strings.Join(args, ", ") + ")"
}

func formatSurd(n *Surd) string {
	if n.Approx {
		re, _ := n.Real.Float64()
		c, _ := n.Coef.Float64()
		m, _ := new(big.Float).SetInt(n.Radicand).Float64()
		part := c * math.Sqrt(m)
		if !n.Imag {
			return FormatFloat(re + part)
		}
		im := FormatFloat(math.Abs(part)) + "*I"
		switch {
		case re == 0 && part < 0:
			return "-" + im
		case re == 0:
			return im
		case part < 0:
			return FormatFloat(re) + " - " + im
		}
		return FormatFloat(re) + " + " + im
	}

	part := radicalTerm(new(big.Rat).Abs(n.Coef), n.Radicand, n.Imag)
	switch {
	case n.Real.Sign() == 0 && n.Coef.Sign() < 0:
		return "-" + part
	case n.Real.Sign() == 0:
		return part
	case n.Coef.Sign() < 0:
		return n.Real.RatString() + " - " + part
	}
	return n.Real.RatString() + " + " + part
}

func radicalTerm(c *big.Rat, m *big.Int, imag bool) string {
	var parts []string
	if !(c.Num().IsInt64() && c.Num().Int64() == 1) {
		parts = append(parts, c.Num().String())
	}
	if !(m.IsInt64() && m.Int64() == 1) {
		parts = append(parts, "sqrt("+m.String()+")")
	}
	if imag {
		parts = append(parts, "I")
	}
	s := "1"
	if len(parts) > 0 {
		s = strings.Join(parts, "*")
	}
	if !c.IsInt() {
		s += "/" + c.Denom().String()
	}
	return s
}
