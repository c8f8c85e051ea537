package algebra

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

const (
	// maxTerms bounds the size of any expanded product.
	maxTerms = 512
	// maxExpandExponent bounds integer powers of multi-term sums.
	maxExpandExponent = 16
	// maxConstExponent bounds integer powers of single terms.
	maxConstExponent = 1000
)

// Atom keys carry a one-byte class prefix so that sorting by key puts
// constants first, then symbols, then opaque sub-expressions.
const (
	keyConst  = "0c"
	keySqrt   = "0r"
	keySymbol = "1"
	keyOpaque = "2"
)

func symbolKey(name string) string { return keySymbol + name }

func isConstKey(key string) bool { return key[0] == '0' }

type factor struct {
	key string
	exp int
}

// term is coef * prod(atom^exp) with factors sorted by key.
type term struct {
	coef    *big.Rat
	approx  bool
	factors []factor
}

// sum is a normalized polynomial (possibly with negative exponents).
// The zero polynomial is the empty sum.
type sum []*term

// frac is num/den. After reduce the den is either 1 or a sum with a
// leading coefficient of 1.
type frac struct {
	num sum
	den sum
}

func constTerm(r *big.Rat, approx bool) *term {
	return &term{coef: new(big.Rat).Set(r), approx: approx}
}

func constSum(r *big.Rat, approx bool) sum {
	if r.Sign() == 0 {
		return nil
	}
	return sum{constTerm(r, approx)}
}

func oneSum() sum { return sum{constTerm(big.NewRat(1, 1), false)} }

func constFrac(r *big.Rat, approx bool) frac {
	return frac{num: constSum(r, approx), den: oneSum()}
}

func atomFrac(key string) frac {
	t := &term{coef: big.NewRat(1, 1), factors: []factor{{key: key, exp: 1}}}
	return frac{num: sum{t}, den: oneSum()}
}

func (t *term) degree() int {
	d := 0
	for _, f := range t.factors {
		if !isConstKey(f.key) {
			d += f.exp
		}
	}
	return d
}

func (t *term) isConst() bool { return len(t.factors) == 0 }

func (t *term) clone() *term {
	c := &term{coef: new(big.Rat).Set(t.coef), approx: t.approx}
	c.factors = append([]factor(nil), t.factors...)
	return c
}

func (t *term) monoKey() string {
	var b strings.Builder
	for _, f := range t.factors {
		fmt.Fprintf(&b, "%s^%d\x00", f.key, f.exp)
	}
	return b.String()
}

func compareTerms(a, b *term) int {
	if da, db := a.degree(), b.degree(); da != db {
		if da > db {
			return -1
		}
		return 1
	}
	for i := 0; i < len(a.factors) && i < len(b.factors); i++ {
		fa, fb := a.factors[i], b.factors[i]
		if fa.key != fb.key {
			if fa.key < fb.key {
				return -1
			}
			return 1
		}
		if fa.exp != fb.exp {
			if fa.exp > fb.exp {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a.factors) > len(b.factors):
		return -1
	case len(a.factors) < len(b.factors):
		return 1
	}
	return 0
}

func normalize(s sum) sum {
	byKey := make(map[string]*term, len(s))
	var order []string
	for _, t := range s {
		k := t.monoKey()
		if prev, ok := byKey[k]; ok {
			prev.coef.Add(prev.coef, t.coef)
			prev.approx = prev.approx || t.approx
			continue
		}
		byKey[k] = t.clone()
		order = append(order, k)
	}
	out := make(sum, 0, len(order))
	for _, k := range order {
		if t := byKey[k]; t.coef.Sign() != 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return compareTerms(out[i], out[j]) < 0 })
	return out
}

func (s sum) isZero() bool { return len(s) == 0 }

func (s sum) isOne() bool {
	return len(s) == 1 && s[0].isConst() && s[0].coef.Cmp(big.NewRat(1, 1)) == 0
}

// constValue reports the value of a sum without atoms.
func (s sum) constValue() (*big.Rat, bool, bool) {
	switch {
	case len(s) == 0:
		return new(big.Rat), false, true
	case len(s) == 1 && s[0].isConst():
		return s[0].coef, s[0].approx, true
	}
	return nil, false, false
}

func (s sum) approx() bool {
	for _, t := range s {
		if t.approx {
			return true
		}
	}
	return false
}

func equalSums(a, b sum) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].monoKey() != b[i].monoKey() || a[i].coef.Cmp(b[i].coef) != 0 {
			return false
		}
	}
	return true
}

func addSums(a, b sum) sum {
	all := make(sum, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return normalize(all)
}

func negSum(s sum) sum {
	out := make(sum, len(s))
	for i, t := range s {
		c := t.clone()
		c.coef.Neg(c.coef)
		out[i] = c
	}
	return out
}

func scaleSum(s sum, r *big.Rat) sum {
	out := make(sum, 0, len(s))
	for _, t := range s {
		c := t.clone()
		c.coef.Mul(c.coef, r)
		if c.coef.Sign() != 0 {
			out = append(out, c)
		}
	}
	return out
}

func mulTerms(a, b *term) *term {
	out := &term{coef: new(big.Rat).Mul(a.coef, b.coef), approx: a.approx || b.approx}
	i, j := 0, 0
	for i < len(a.factors) || j < len(b.factors) {
		switch {
		case j >= len(b.factors) || (i < len(a.factors) && a.factors[i].key < b.factors[j].key):
			out.factors = append(out.factors, a.factors[i])
			i++
		case i >= len(a.factors) || b.factors[j].key < a.factors[i].key:
			out.factors = append(out.factors, b.factors[j])
			j++
		default:
			if e := a.factors[i].exp + b.factors[j].exp; e != 0 {
				out.factors = append(out.factors, factor{key: a.factors[i].key, exp: e})
			}
			i++
			j++
		}
	}
	foldSqrtFactors(out)
	return out
}

// foldSqrtFactors keeps square roots of integers at exponent 0 or 1:
// sqrt(m)**2 becomes m and 1/sqrt(m) becomes sqrt(m)/m.
func foldSqrtFactors(t *term) {
	kept := t.factors[:0]
	for _, f := range t.factors {
		if !strings.HasPrefix(f.key, keySqrt) {
			kept = append(kept, f)
			continue
		}
		m, _ := new(big.Int).SetString(f.key[len(keySqrt):], 10)
		rem := ((f.exp % 2) + 2) % 2
		half := (f.exp - rem) / 2
		scale := new(big.Rat).SetInt(new(big.Int).Exp(m, big.NewInt(int64(abs(half))), nil))
		if half < 0 {
			scale.Inv(scale)
		}
		t.coef.Mul(t.coef, scale)
		if rem == 1 {
			kept = append(kept, factor{key: f.key, exp: 1})
		}
	}
	t.factors = kept
}

func mulSums(a, b sum) (sum, error) {
	if len(a)*len(b) > maxTerms {
		return nil, errTooLarge
	}
	out := make(sum, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			out = append(out, mulTerms(x, y))
		}
	}
	out = normalize(out)
	if len(out) > maxTerms {
		return nil, errTooLarge
	}
	return out, nil
}

func powSum(s sum, n int) (sum, error) {
	if n == 0 {
		return oneSum(), nil
	}
	if len(s) == 0 {
		return nil, nil
	}
	if len(s) == 1 {
		if n > maxConstExponent {
			return nil, errTooLarge
		}
		t := s[0].clone()
		t.coef = ratPow(t.coef, n)
		for i := range t.factors {
			t.factors[i].exp *= n
		}
		foldSqrtFactors(t)
		return sum{t}, nil
	}
	if n > maxExpandExponent {
		return nil, errTooLarge
	}
	out := oneSum()
	for i := 0; i < n; i++ {
		var err error
		if out, err = mulSums(out, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func ratPow(r *big.Rat, n int) *big.Rat {
	num := new(big.Int).Exp(r.Num(), big.NewInt(int64(n)), nil)
	den := new(big.Int).Exp(r.Denom(), big.NewInt(int64(n)), nil)
	return new(big.Rat).SetFrac(num, den)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func addFrac(a, b frac) (frac, error) {
	if equalSums(a.den, b.den) {
		return reduce(frac{num: addSums(a.num, b.num), den: a.den})
	}
	l, err := mulSums(a.num, b.den)
	if err != nil {
		return frac{}, err
	}
	r, err := mulSums(b.num, a.den)
	if err != nil {
		return frac{}, err
	}
	den, err := mulSums(a.den, b.den)
	if err != nil {
		return frac{}, err
	}
	return reduce(frac{num: addSums(l, r), den: den})
}

func negFrac(f frac) frac { return frac{num: negSum(f.num), den: f.den} }

func mulFrac(a, b frac) (frac, error) {
	num, err := mulSums(a.num, b.num)
	if err != nil {
		return frac{}, err
	}
	den, err := mulSums(a.den, b.den)
	if err != nil {
		return frac{}, err
	}
	return reduce(frac{num: num, den: den})
}

func powFrac(f frac, n int) (frac, error) {
	if n < 0 {
		f = frac{num: f.den, den: f.num}
		n = -n
	}
	num, err := powSum(f.num, n)
	if err != nil {
		return frac{}, err
	}
	den, err := powSum(f.den, n)
	if err != nil {
		return frac{}, err
	}
	return reduce(frac{num: num, den: den})
}

// reduce brings a fraction to normal form: monomial denominators are
// folded into the numerator as negative exponents, other denominators are
// made monic and common univariate factors are cancelled.
func reduce(f frac) (frac, error) {
	if f.den.isZero() {
		return frac{}, fmt.Errorf("%w: division by zero", ErrDomain)
	}
	if f.num.isZero() {
		return frac{num: nil, den: oneSum()}, nil
	}
	if len(f.den) == 1 {
		return frac{num: divideByTerm(f.num, f.den[0]), den: oneSum()}, nil
	}

	f = clearNegativeExponents(f)
	lead := new(big.Rat).Inv(f.den[0].coef)
	f = frac{num: scaleSum(f.num, lead), den: scaleSum(f.den, lead)}

	if f.num.approx() || f.den.approx() {
		return f, nil
	}
	key, dp, ok := toUpoly(f.den)
	if !ok || key == "" {
		return f, nil
	}
	nkey, np, ok := toUpoly(f.num)
	if !ok || (nkey != key && nkey != "") {
		return f, nil
	}
	g := upolyGCD(np, dp)
	if len(g) <= 1 {
		return f, nil
	}
	nq, _ := upolyDivmod(np, g)
	dq, _ := upolyDivmod(dp, g)
	out := frac{num: fromUpoly(key, nq), den: fromUpoly(key, dq)}
	if len(out.den) == 1 {
		return frac{num: divideByTerm(out.num, out.den[0]), den: oneSum()}, nil
	}
	lead = new(big.Rat).Inv(out.den[0].coef)
	return frac{num: scaleSum(out.num, lead), den: scaleSum(out.den, lead)}, nil
}

func divideByTerm(s sum, d *term) sum {
	inv := &term{coef: new(big.Rat).Inv(d.coef), approx: d.approx}
	for _, f := range d.factors {
		inv.factors = append(inv.factors, factor{key: f.key, exp: -f.exp})
	}
	out := make(sum, len(s))
	for i, t := range s {
		out[i] = mulTerms(t, inv)
	}
	return normalize(out)
}

// clearNegativeExponents multiplies both sides so that no atom carries a
// negative exponent.
func clearNegativeExponents(f frac) frac {
	minExp := make(map[string]int)
	for _, s := range []sum{f.num, f.den} {
		for _, t := range s {
			for _, fc := range t.factors {
				if fc.exp < minExp[fc.key] {
					minExp[fc.key] = fc.exp
				}
			}
		}
	}
	if len(minExp) == 0 {
		return f
	}
	m := &term{coef: big.NewRat(1, 1)}
	for key, e := range minExp {
		m.factors = append(m.factors, factor{key: key, exp: -e})
	}
	sort.Slice(m.factors, func(i, j int) bool { return m.factors[i].key < m.factors[j].key })
	shift := func(s sum) sum {
		out := make(sum, len(s))
		for i, t := range s {
			out[i] = mulTerms(t, m)
		}
		return normalize(out)
	}
	return frac{num: shift(f.num), den: shift(f.den)}
}

// upoly holds rational coefficients indexed by degree.
type upoly []*big.Rat

// toUpoly views s as a univariate polynomial. key is "" when s is constant.
func toUpoly(s sum) (string, upoly, bool) {
	key := ""
	for _, t := range s {
		if t.approx || len(t.factors) > 1 {
			return "", nil, false
		}
		if len(t.factors) == 1 {
			f := t.factors[0]
			if f.exp < 0 || (key != "" && key != f.key) {
				return "", nil, false
			}
			key = f.key
		}
	}
	var p upoly
	for _, t := range s {
		d := 0
		if len(t.factors) == 1 {
			d = t.factors[0].exp
		}
		for len(p) <= d {
			p = append(p, new(big.Rat))
		}
		p[d].Add(p[d], t.coef)
	}
	return key, p.trim(), true
}

func fromUpoly(key string, p upoly) sum {
	var out sum
	for d, c := range p {
		if c.Sign() == 0 {
			continue
		}
		t := constTerm(c, false)
		if d > 0 {
			t.factors = []factor{{key: key, exp: d}}
		}
		out = append(out, t)
	}
	return normalize(out)
}

func (p upoly) trim() upoly {
	for len(p) > 0 && p[len(p)-1].Sign() == 0 {
		p = p[:len(p)-1]
	}
	return p
}

func (p upoly) degree() int { return len(p) - 1 }

func (p upoly) eval(x *big.Rat) *big.Rat {
	acc := new(big.Rat)
	for i := len(p) - 1; i >= 0; i-- {
		acc.Mul(acc, x)
		acc.Add(acc, p[i])
	}
	return acc
}

func upolyDivmod(a, b upoly) (upoly, upoly) {
	r := make(upoly, len(a))
	for i, c := range a {
		r[i] = new(big.Rat).Set(c)
	}
	r = r.trim()
	if len(r) < len(b) {
		return nil, r
	}
	q := make(upoly, len(r)-len(b)+1)
	for i := range q {
		q[i] = new(big.Rat)
	}
	lead := b[len(b)-1]
	for len(r) >= len(b) && len(r) > 0 {
		shift := len(r) - len(b)
		c := new(big.Rat).Quo(r[len(r)-1], lead)
		q[shift] = c
		for i, bc := range b {
			r[shift+i].Sub(r[shift+i], new(big.Rat).Mul(c, bc))
		}
		r = r[:len(r)-1].trim()
	}
	return q.trim(), r
}

// upolyGCD returns the monic greatest common divisor of a and b.
func upolyGCD(a, b upoly) upoly {
	for len(b) > 0 {
		_, r := upolyDivmod(a, b)
		a, b = b, r
	}
	if len(a) == 0 {
		return a
	}
	lead := new(big.Rat).Inv(a[len(a)-1])
	out := make(upoly, len(a))
	for i, c := range a {
		out[i] = new(big.Rat).Mul(c, lead)
	}
	return out
}
