package algebra

import (
	"fmt"
	"math"
	"math/big"
	"sort"
)

// maxRootSearchBits bounds the coefficients for which candidate rational
// roots are enumerated.
const maxRootSearchBits = 40

// Solve returns the distinct solutions of eq for the variable v. Real
// roots come first in ascending order, complex roots follow. An empty
// result means the equation has no solution.
func Solve(eq *Equation, v string) ([]Expr, error) {
	s := newSimplifier()
	f, err := s.toFrac(&Add{Terms: []Expr{eq.Left, &Neg{X: eq.Right}}})
	if err != nil {
		return nil, err
	}
	varKey := symbolKey(v)
	for key, a := range s.atoms {
		if key != varKey && containsVariable(a, v) {
			return nil, fmt.Errorf("%w: %s is not polynomial in %s", ErrUnsolvable, Format(a), v)
		}
	}

	coeffs, err := coefficients(f.num, varKey)
	if err != nil {
		return nil, err
	}
	deg := len(coeffs) - 1
	if deg <= 0 {
		return []Expr{}, nil
	}

	var roots []Expr
	if p, approx, ok := constantCoefficients(coeffs); ok {
		if roots, err = solveUpoly(p, approx); err != nil {
			return nil, err
		}
	} else if deg == 1 {
		// c1*v + c0 = 0
		c0 := frac{num: coeffs[0], den: oneSum()}
		c1 := frac{num: coeffs[1], den: oneSum()}
		inv, err := powFrac(c1, -1)
		if err != nil {
			return nil, err
		}
		root, err := mulFrac(negFrac(c0), inv)
		if err != nil {
			return nil, err
		}
		roots = []Expr{s.fromFrac(root)}
	} else {
		return nil, fmt.Errorf("%w: degree %d equation with symbolic coefficients", ErrUnsolvable, deg)
	}

	return dropPoles(roots, f.den, varKey), nil
}

// coefficients splits num by powers of the variable after clearing
// negative powers. Index i holds the coefficient of v**i.
func coefficients(num sum, varKey string) ([]sum, error) {
	minExp := 0
	for _, t := range num {
		for _, fc := range t.factors {
			if fc.key == varKey && fc.exp < minExp {
				minExp = fc.exp
			}
		}
	}

	byDeg := make(map[int]sum)
	maxDeg := 0
	for _, t := range num {
		d := -minExp
		rest := &term{coef: t.coef, approx: t.approx}
		for _, fc := range t.factors {
			if fc.key == varKey {
				d += fc.exp
				continue
			}
			rest.factors = append(rest.factors, fc)
		}
		byDeg[d] = append(byDeg[d], rest)
		if d > maxDeg {
			maxDeg = d
		}
	}
	if len(num) == 0 {
		return nil, nil
	}
	out := make([]sum, maxDeg+1)
	for d := range out {
		out[d] = normalize(byDeg[d])
	}
	return out, nil
}

func constantCoefficients(coeffs []sum) (upoly, bool, bool) {
	p := make(upoly, len(coeffs))
	anyApprox := false
	for i, c := range coeffs {
		v, approx, ok := c.constValue()
		if !ok {
			return nil, false, false
		}
		p[i] = new(big.Rat).Set(v)
		anyApprox = anyApprox || approx
	}
	return p, anyApprox, true
}

// dropPoles removes rational roots at which the denominator vanishes.
func dropPoles(roots []Expr, den sum, varKey string) []Expr {
	key, dp, ok := toUpoly(den)
	if !ok || key != varKey {
		return roots
	}
	out := roots[:0]
	for _, r := range roots {
		if n, isNum := r.(*Num); isNum && dp.eval(n.Val).Sign() == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

func solveUpoly(p upoly, approx bool) ([]Expr, error) {
	p = p.trim()
	var rational []*big.Rat
	var roots []Expr

	if len(p) > 1 && p[0].Sign() == 0 {
		rational = append(rational, new(big.Rat))
		for len(p) > 1 && p[0].Sign() == 0 {
			p = p[1:]
		}
	}

	for p.degree() > 2 {
		r, ok := findRationalRoot(p)
		if !ok {
			return nil, fmt.Errorf("%w: no closed form for degree %d polynomial", ErrUnsolvable, p.degree())
		}
		rational = append(rational, r)
		p = deflate(p, r)
	}

	switch p.degree() {
	case 1:
		rational = append(rational, new(big.Rat).Neg(new(big.Rat).Quo(p[0], p[1])))
	case 2:
		rs, surds := solveQuadratic(p[2], p[1], p[0], approx)
		rational = append(rational, rs...)
		roots = append(roots, surds...)
	}

	seen := make(map[string]struct{})
	for _, r := range rational {
		if _, dup := seen[r.String()]; dup {
			continue
		}
		seen[r.String()] = struct{}{}
		roots = append(roots, newRat(r, approx))
	}
	sortRoots(roots)
	return roots, nil
}

func deflate(p upoly, r *big.Rat) upoly {
	q, _ := upolyDivmod(p, upoly{new(big.Rat).Neg(r), big.NewRat(1, 1)})
	return q
}

// findRationalRoot applies the rational root theorem to p scaled to
// integer coefficients.
func findRationalRoot(p upoly) (*big.Rat, bool) {
	ints := integerCoefficients(p)
	a0 := new(big.Int).Abs(ints[0])
	an := new(big.Int).Abs(ints[len(ints)-1])
	if a0.BitLen() > maxRootSearchBits || an.BitLen() > maxRootSearchBits {
		return nil, false
	}
	for _, q := range divisors(an.Int64()) {
		for _, n := range divisors(a0.Int64()) {
			for _, sign := range []int64{1, -1} {
				r := big.NewRat(sign*n, q)
				if p.eval(r).Sign() == 0 {
					return r, true
				}
			}
		}
	}
	return nil, false
}

func integerCoefficients(p upoly) []*big.Int {
	lcm := big.NewInt(1)
	for _, c := range p {
		d := c.Denom()
		g := new(big.Int).GCD(nil, nil, lcm, d)
		lcm.Mul(lcm, new(big.Int).Quo(d, g))
	}
	out := make([]*big.Int, len(p))
	scale := new(big.Rat).SetInt(lcm)
	for i, c := range p {
		out[i] = new(big.Rat).Mul(c, scale).Num()
	}
	return out
}

func divisors(n int64) []int64 {
	var small, large []int64
	for i := int64(1); i*i <= n; i++ {
		if n%i != 0 {
			continue
		}
		small = append(small, i)
		if i*i != n {
			large = append(large, n/i)
		}
	}
	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}
	return small
}

// solveQuadratic returns the rational roots of a*x**2 + b*x + c and the
// irrational ones as surds.
func solveQuadratic(a, b, c *big.Rat, approx bool) ([]*big.Rat, []Expr) {
	// disc = b*b - 4*a*c
	disc := new(big.Rat).Mul(b, b)
	disc.Sub(disc, new(big.Rat).Mul(big.NewRat(4, 1), new(big.Rat).Mul(a, c)))
	twoA := new(big.Rat).Mul(big.NewRat(2, 1), a)
	center := new(big.Rat).Quo(new(big.Rat).Neg(b), twoA)

	if disc.Sign() == 0 {
		return []*big.Rat{center}, nil
	}
	// sqrt(n/d) = sqrt(n*d)/d = k*sqrt(m)/d
	nd := new(big.Int).Mul(new(big.Int).Abs(disc.Num()), disc.Denom())
	k, m := splitSquare(nd)
	width := new(big.Rat).SetFrac(k, disc.Denom())
	width.Quo(width, new(big.Rat).Abs(twoA))

	imag := disc.Sign() < 0
	if !imag && m.IsInt64() && m.Int64() == 1 {
		return []*big.Rat{
			new(big.Rat).Sub(center, width),
			new(big.Rat).Add(center, width),
		}, nil
	}
	lo := &Surd{Real: center, Coef: new(big.Rat).Neg(width), Radicand: m, Imag: imag, Approx: approx}
	hi := &Surd{Real: new(big.Rat).Set(center), Coef: width, Radicand: new(big.Int).Set(m), Imag: imag, Approx: approx}
	return nil, []Expr{lo, hi}
}

// rootKey orders real roots by value, then complex roots by imaginary part.
func rootKey(e Expr) (bool, float64, float64) {
	switch n := e.(type) {
	case *Num:
		f, _ := n.Val.Float64()
		return false, f, 0
	case *Surd:
		re, _ := n.Real.Float64()
		c, _ := n.Coef.Float64()
		m, _ := new(big.Float).SetInt(n.Radicand).Float64()
		part := c * math.Sqrt(m)
		if n.Imag {
			return true, part, re
		}
		return false, re + part, 0
	}
	return false, 0, 0
}

func sortRoots(roots []Expr) {
	sort.SliceStable(roots, func(i, j int) bool {
		ci, ki, ri := rootKey(roots[i])
		cj, kj, rj := rootKey(roots[j])
		if ci != cj {
			return !ci
		}
		if ki != kj {
			return ki < kj
		}
		return ri < rj
	})
}
