package algebra

import (
	"math/big"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
	tokOpen
	tokClose
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// functions maps accepted call names to their arity range.
var functions = map[string][2]int{
	"sin":  {1, 1},
	"cos":  {1, 1},
	"tan":  {1, 1},
	"asin": {1, 1},
	"acos": {1, 1},
	"atan": {1, 1},
	"sinh": {1, 1},
	"cosh": {1, 1},
	"tanh": {1, 1},
	"exp":  {1, 1},
	"log":  {1, 2},
	"ln":   {1, 1},
	"sqrt": {1, 1},
	"abs":  {1, 1},
}

var closing = map[string]string{"(": ")", "[": "]", "{": "}"}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' }

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			tok, next := lexNumber(src, i)
			toks = append(toks, tok)
			i = next
		case isLetter(c):
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '*' && i+1 < len(src) && src[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i += 2
		case strings.IndexByte("+-*/", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case strings.IndexByte("([{", c) >= 0:
			toks = append(toks, token{kind: tokOpen, text: string(c), pos: i})
			i++
		case strings.IndexByte(")]}", c) >= 0:
			toks = append(toks, token{kind: tokClose, text: string(c), pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '<' || c == '>':
			return nil, parseErrorf(i, "relational operators are not supported")
		case c == '=':
			return nil, parseErrorf(i, "unexpected '='")
		default:
			return nil, parseErrorf(i, "unexpected character %q", c)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// lexNumber reads digits, an optional fraction and an optional exponent,
// returning the literal in a form big.Rat accepts.
func lexNumber(src string, i int) (token, int) {
	start := i
	intPart := i
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	whole := src[intPart:i]
	frac := ""
	if i < len(src) && src[i] == '.' {
		i++
		fs := i
		for i < len(src) && isDigit(src[i]) {
			i++
		}
		frac = src[fs:i]
	}
	exp := ""
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			es := i + 1
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			exp = src[es:j]
			i = j
		}
	}

	if whole == "" {
		whole = "0"
	}
	text := whole
	if frac != "" {
		text += "." + frac
	}
	if exp != "" {
		text += "e" + exp
	}
	// A trailing dot or an exponent still marks the literal as a float.
	if frac == "" && exp == "" && strings.Contains(src[start:i], ".") {
		text += ".0"
	}
	return token{kind: tokNum, text: text, pos: start}, i
}

type parser struct {
	toks []token
	pos  int
}

// Parse turns a sanitized expression into a tree. Multiplication must be
// explicit; "**" is the power operator.
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, parseErrorf(0, "empty expression")
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, parseErrorf(tok.pos, "unexpected %q", tok.text)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(op string) bool {
	tok := p.peek()
	return tok.kind == tokOp && tok.text == op
}

func (p *parser) parseAdditive() (Expr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.isOp("+") || p.isOp("-") {
		op := p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if op.text == "-" {
			rhs = &Neg{X: rhs}
		}
		terms = append(terms, rhs)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &Add{Terms: terms}, nil
}

func (p *parser) parseTerm() (Expr, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	factors := []Expr{first}
	for p.isOp("*") || p.isOp("/") {
		op := p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op.text == "/" {
			rhs = &Pow{Base: rhs, Exp: NewInt(-1)}
		}
		factors = append(factors, rhs)
	}
	if len(factors) == 1 {
		return first, nil
	}
	return &Mul{Factors: factors}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.isOp("+"):
		p.next()
		return p.parseUnary()
	case p.isOp("-"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Neg{X: x}, nil
	}
	return p.parsePower()
}

// parsePower is right associative and binds tighter than unary minus on
// its left: -x**2 is -(x**2), 2**-1 is 2**(-1).
func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Pow{Base: base, Exp: exp}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokNum:
		r, ok := new(big.Rat).SetString(tok.text)
		if !ok {
			return nil, parseErrorf(tok.pos, "invalid number %q", tok.text)
		}
		return &Num{Val: r, Approx: strings.ContainsAny(tok.text, ".e")}, nil
	case tokIdent:
		return p.parseIdent(tok)
	case tokOpen:
		inner, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := p.expectClose(tok); err != nil {
			return nil, err
		}
		return inner, nil
	case tokEOF:
		return nil, parseErrorf(tok.pos, "unexpected end of expression")
	}
	return nil, parseErrorf(tok.pos, "unexpected %q", tok.text)
}

func (p *parser) expectClose(open token) error {
	tok := p.next()
	if tok.kind != tokClose {
		if tok.kind == tokEOF {
			return parseErrorf(open.pos, "unclosed %q", open.text)
		}
		return parseErrorf(tok.pos, "expected %q, got %q", closing[open.text], tok.text)
	}
	if tok.text != closing[open.text] {
		return parseErrorf(tok.pos, "mismatched %q", tok.text)
	}
	return nil
}

func (p *parser) parseIdent(tok token) (Expr, error) {
	name := tok.text
	arity, isFunc := functions[name]
	if p.peek().kind != tokOpen {
		switch {
		case isFunc:
			return nil, parseErrorf(tok.pos, "function %s requires arguments", name)
		case name == "pi" || name == "E":
			return &Const{Name: name}, nil
		}
		return &Sym{Name: name}, nil
	}
	if !isFunc {
		return nil, parseErrorf(tok.pos, "unknown function %s", name)
	}

	open := p.next()
	var args []Expr
	for {
		arg, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.expectClose(open); err != nil {
		return nil, err
	}
	if len(args) < arity[0] || len(args) > arity[1] {
		return nil, parseErrorf(tok.pos, "%s takes %d argument(s), got %d", name, arity[1], len(args))
	}

	switch name {
	case "sqrt":
		return &Pow{Base: args[0], Exp: &Num{Val: big.NewRat(1, 2)}}, nil
	case "ln":
		name = "log"
	}
	return &Call{Func: name, Args: args}, nil
}
