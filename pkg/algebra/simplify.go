package algebra

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

type simplifier struct {
	atoms map[string]Expr
}

func newSimplifier() *simplifier {
	return &simplifier{atoms: make(map[string]Expr)}
}

// Simplify returns the rational normal form of e.
func Simplify(e Expr) (Expr, error) {
	if _, ok := e.(*Equation); ok {
		return nil, fmt.Errorf("%w: cannot simplify an equation", ErrUnsolvable)
	}
	s := newSimplifier()
	f, err := s.toFrac(e)
	if err != nil {
		return nil, err
	}
	return s.fromFrac(f), nil
}

func (s *simplifier) atom(key string, e Expr) frac {
	if _, ok := s.atoms[key]; !ok {
		s.atoms[key] = e
	}
	return atomFrac(key)
}

func (s *simplifier) opaque(e Expr) frac {
	return s.atom(keyOpaque+Format(e), e)
}

// toFrac converts e, keeping any sub-expression whose expansion would be
// too large as an opaque atom.
func (s *simplifier) toFrac(e Expr) (frac, error) {
	f, err := s.convert(e)
	if errors.Is(err, errTooLarge) {
		return s.opaque(e), nil
	}
	return f, err
}

func (s *simplifier) convert(e Expr) (frac, error) {
	switch n := e.(type) {
	case *Num:
		return constFrac(n.Val, n.Approx), nil
	case *Sym:
		return s.atom(symbolKey(n.Name), n), nil
	case *Const:
		return s.atom(keyConst+n.Name, n), nil
	case *Neg:
		f, err := s.toFrac(n.X)
		if err != nil {
			return frac{}, err
		}
		return negFrac(f), nil
	case *Add:
		acc := constFrac(new(big.Rat), false)
		for _, t := range n.Terms {
			f, err := s.toFrac(t)
			if err != nil {
				return frac{}, err
			}
			if acc, err = addFrac(acc, f); err != nil {
				return frac{}, err
			}
		}
		return acc, nil
	case *Mul:
		acc := constFrac(big.NewRat(1, 1), false)
		for _, x := range n.Factors {
			f, err := s.toFrac(x)
			if err != nil {
				return frac{}, err
			}
			if acc, err = mulFrac(acc, f); err != nil {
				return frac{}, err
			}
		}
		return acc, nil
	case *Pow:
		return s.convertPow(n)
	case *Call:
		return s.convertCall(n)
	case *Surd:
		return s.opaque(n), nil
	case *Equation:
		return frac{}, fmt.Errorf("%w: nested equation", ErrUnsolvable)
	}
	return frac{}, fmt.Errorf("unsupported expression %T", e)
}

func (s *simplifier) convertPow(n *Pow) (frac, error) {
	base, err := s.toFrac(n.Base)
	if err != nil {
		return frac{}, err
	}
	exp, err := s.toFrac(n.Exp)
	if err != nil {
		return frac{}, err
	}

	q, qApprox, ok := fracConst(exp)
	if !ok {
		return s.opaque(&Pow{Base: s.fromFrac(base), Exp: s.fromFrac(exp)}), nil
	}
	b, bApprox, bConst := fracConst(base)

	if (qApprox || bApprox) && bConst {
		bf, _ := b.Float64()
		qf, _ := q.Float64()
		v := math.Pow(bf, qf)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return frac{}, fmt.Errorf("%w: result is not a real number", ErrDomain)
		}
		return constFrac(new(big.Rat).SetFloat64(v), true), nil
	}
	if q.IsInt() && q.Num().IsInt64() && abs64(q.Num().Int64()) <= maxConstExponent {
		return powFrac(base, int(q.Num().Int64()))
	}
	if bConst && b.Sign() > 0 {
		if f, ok := s.rationalPow(b, q); ok {
			return f, nil
		}
	}
	return s.opaque(&Pow{Base: s.fromFrac(base), Exp: newRat(q, qApprox)}), nil
}

// rationalPow computes r**(p/d) for positive rational r, exactly when the
// root is rational and as k*sqrt(m) for square roots.
func (s *simplifier) rationalPow(r, q *big.Rat) (frac, bool) {
	p := q.Num()
	d := q.Denom()
	if !p.IsInt64() || !d.IsInt64() || abs64(p.Int64()) > maxConstExponent || d.Int64() > 64 {
		return frac{}, false
	}
	k := int(d.Int64())
	numRoot, okNum := nthRoot(r.Num(), k)
	denRoot, okDen := nthRoot(r.Denom(), k)
	if okNum && okDen {
		root := new(big.Rat).SetFrac(numRoot, denRoot)
		f, err := powFrac(constFrac(root, false), int(p.Int64()))
		return f, err == nil
	}
	if k != 2 {
		return frac{}, false
	}

	// sqrt(a/b) = sqrt(a*b)/b = coef*sqrt(m)
	ab := new(big.Int).Mul(r.Num(), r.Denom())
	sq, m := splitSquare(ab)
	coef := new(big.Rat).SetFrac(sq, r.Denom())
	key := keySqrt + m.String()
	s.atom(key, &Pow{Base: &Num{Val: new(big.Rat).SetInt(m)}, Exp: &Num{Val: big.NewRat(1, 2)}})
	root := frac{num: sum{{coef: coef, factors: []factor{{key: key, exp: 1}}}}, den: oneSum()}
	f, err := powFrac(root, int(p.Int64()))
	return f, err == nil
}

func (s *simplifier) convertCall(n *Call) (frac, error) {
	args := make([]Expr, len(n.Args))
	consts := make([]*big.Rat, len(n.Args))
	allConst, anyApprox := true, false
	for i, a := range n.Args {
		f, err := s.toFrac(a)
		if err != nil {
			return frac{}, err
		}
		args[i] = s.fromFrac(f)
		v, approx, ok := fracConst(f)
		consts[i] = v
		allConst = allConst && ok
		anyApprox = anyApprox || approx
	}
	call := &Call{Func: n.Func, Args: args}
	if !allConst {
		return s.opaque(call), nil
	}

	if anyApprox {
		v, err := Evaluate(call)
		if err != nil {
			return frac{}, err
		}
		return constFrac(new(big.Rat).SetFloat64(v), true), nil
	}
	x := consts[0]
	switch {
	case n.Func == "abs":
		return constFrac(new(big.Rat).Abs(x), false), nil
	case x.Sign() == 0:
		switch n.Func {
		case "sin", "tan", "asin", "atan", "sinh", "tanh":
			return constFrac(new(big.Rat), false), nil
		case "cos", "cosh", "exp":
			return constFrac(big.NewRat(1, 1), false), nil
		}
	case n.Func == "log" && len(args) == 1 && x.Cmp(big.NewRat(1, 1)) == 0:
		return constFrac(new(big.Rat), false), nil
	}
	return s.opaque(call), nil
}

func fracConst(f frac) (*big.Rat, bool, bool) {
	if !f.den.isOne() {
		return nil, false, false
	}
	return f.num.constValue()
}

func (s *simplifier) fromFrac(f frac) Expr {
	num := s.sumToExpr(f.num)
	if f.den.isOne() {
		return num
	}
	return &Mul{Factors: []Expr{num, &Pow{Base: s.sumToExpr(f.den), Exp: NewInt(-1)}}}
}

func (s *simplifier) sumToExpr(sm sum) Expr {
	switch len(sm) {
	case 0:
		return NewInt(0)
	case 1:
		return s.signedTerm(sm[0])
	}
	terms := make([]Expr, len(sm))
	for i, t := range sm {
		terms[i] = s.signedTerm(t)
	}
	return &Add{Terms: terms}
}

func (s *simplifier) signedTerm(t *term) Expr {
	if t.coef.Sign() >= 0 {
		return s.termToExpr(t)
	}
	pos := t.clone()
	pos.coef.Neg(pos.coef)
	return &Neg{X: s.termToExpr(pos)}
}

func (s *simplifier) termToExpr(t *term) Expr {
	var factors []Expr
	if len(t.factors) == 0 || t.coef.Cmp(big.NewRat(1, 1)) != 0 || t.approx {
		factors = append(factors, newRat(t.coef, t.approx))
	}
	for _, f := range t.factors {
		a := s.atoms[f.key]
		if f.exp == 1 {
			factors = append(factors, a)
			continue
		}
		factors = append(factors, &Pow{Base: a, Exp: NewInt(int64(f.exp))})
	}
	if len(factors) == 1 {
		return factors[0]
	}
	return &Mul{Factors: factors}
}

// nthRoot returns the integer k-th root of n and whether it is exact.
func nthRoot(n *big.Int, k int) (*big.Int, bool) {
	if n.Sign() == 0 || k == 1 {
		return new(big.Int).Set(n), true
	}
	if k == 2 {
		r := new(big.Int).Sqrt(n)
		return r, new(big.Int).Mul(r, r).Cmp(n) == 0
	}
	bk := big.NewInt(int64(k))
	lo, hi := big.NewInt(0), new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()/k+1))
	one := big.NewInt(1)
	for lo.Cmp(hi) < 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Add(mid, one).Rsh(mid, 1)
		if new(big.Int).Exp(mid, bk, nil).Cmp(n) <= 0 {
			lo = mid
		} else {
			hi = mid.Sub(mid, one)
		}
	}
	return lo, new(big.Int).Exp(lo, bk, nil).Cmp(n) == 0
}

// splitSquare writes n as k*k*m, extracting square factors found by
// trial division.
func splitSquare(n *big.Int) (*big.Int, *big.Int) {
	k := big.NewInt(1)
	m := new(big.Int).Set(n)
	if r, ok := nthRoot(m, 2); ok {
		return r, big.NewInt(1)
	}
	p, sq := new(big.Int), new(big.Int)
	rem := new(big.Int)
	for i := int64(2); i <= 100000; i++ {
		p.SetInt64(i)
		sq.Mul(p, p)
		if sq.Cmp(m) > 0 {
			break
		}
		for {
			q, r := new(big.Int).QuoRem(m, sq, rem)
			if r.Sign() != 0 {
				break
			}
			m = q
			k.Mul(k, p)
		}
	}
	if r, ok := nthRoot(m, 2); ok {
		k.Mul(k, r)
		m.SetInt64(1)
	}
	return k, m
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
