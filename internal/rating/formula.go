package rating

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Formula is a parsed output expression. The grammar is plain arithmetic over
// numeric literals and rating references:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | ref | call | "(" expr ")"
//	ref     = "values" ( "." ident | "[" string "]" )
//	call    = [ "Math." ] fname "(" expr { "," expr } ")"
//
// A Formula holds no reference to its evaluation environment and is safe for
// concurrent use.
type Formula struct {
	src  string
	root node
	refs []string
}

const (
	// MaxFormulaDepth bounds the nesting of parentheses, calls and unary signs.
	MaxFormulaDepth = 256
	// MaxFormulaTokens bounds the length of a formula and with it the height
	// of operator chains.
	MaxFormulaTokens = 4096
)

// ParseFormula compiles src into a Formula.
func ParseFormula(src string) (*Formula, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(toks)-1 > MaxFormulaTokens {
		return nil, fmt.Errorf("formula has %d tokens, limit is %d", len(toks)-1, MaxFormulaTokens)
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", t, t.pos)
	}
	f := &Formula{src: src, root: root}
	seen := map[string]bool{}
	collectRefs(root, func(k string) {
		if !seen[k] {
			seen[k] = true
			f.refs = append(f.refs, k)
		}
	})
	return f, nil
}

// String returns the formula source.
func (f *Formula) String() string { return f.src }

// References returns the rating codes the formula reads, in order of first use.
func (f *Formula) References() []string {
	return append([]string(nil), f.refs...)
}

// Eval evaluates the formula against ratings.
func (f *Formula) Eval(ratings Ratings) (float64, error) {
	v, err := f.root.eval(ratings)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

// ----- lexer -----

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of formula"
	}
	return strconv.Quote(t.text)
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			text := string(rs[start:i])
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, pos: start})
		case r == '_' || r == '$' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || rs[i] == '$' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case r == '"' || r == '\'':
			start := i
			i++
			var sb strings.Builder
			for i < len(rs) && rs[i] != r {
				if rs[i] == '\\' && i+1 < len(rs) {
					i++
				}
				sb.WriteRune(rs[i])
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			i++
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: start})
		case strings.ContainsRune("+-*/()[].,", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

// ----- parser -----

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxFormulaDepth {
		return fmt.Errorf("formula nested deeper than %d levels at offset %d", MaxFormulaDepth, p.peek().pos)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(s string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == s
}

func (p *parser) expect(s string) error {
	if !p.isOp(s) {
		t := p.peek()
		return fmt.Errorf("expected %q, found %s at offset %d", s, t, t.pos)
	}
	p.next()
	return nil
}

func (p *parser) parseExpr() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text[0]
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next().text[0]
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") || p.isOp("+") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		op := p.next().text[0]
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode(t.num), nil
	case tokOp:
		if t.text == "(" {
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	case tokIdent:
		switch t.text {
		case "values":
			return p.parseRef()
		case "Math":
			if err := p.expect("."); err != nil {
				return nil, err
			}
			name := p.next()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expected function name at offset %d", name.pos)
			}
			return p.parseCall(name)
		default:
			return p.parseCall(t)
		}
	case tokEOF:
		return nil, errors.New("unexpected end of formula")
	}
	return nil, fmt.Errorf("unexpected %s at offset %d", t, t.pos)
}

func (p *parser) parseRef() (node, error) {
	switch {
	case p.isOp("."):
		p.next()
		id := p.next()
		if id.kind != tokIdent {
			return nil, fmt.Errorf("expected rating code after values. at offset %d", id.pos)
		}
		return refNode(id.text), nil
	case p.isOp("["):
		p.next()
		key := p.next()
		if key.kind != tokString {
			return nil, fmt.Errorf("expected quoted rating code at offset %d", key.pos)
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return refNode(key.text), nil
	}
	return nil, errors.New("values must be followed by .code or [\"code\"]")
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, fmt.Errorf("unknown identifier %q at offset %d", name.text, name.pos)
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []node
	for !p.isOp(")") {
		if len(args) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	p.next()
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, fmt.Errorf("%s called with %d arguments", name.text, len(args))
	}
	return callNode{name: name.text, fn: fn.apply, args: args}, nil
}

// ----- evaluation -----

type node interface {
	eval(Ratings) (float64, error)
}

type numberNode float64

func (n numberNode) eval(Ratings) (float64, error) { return float64(n), nil }

type refNode string

func (n refNode) eval(r Ratings) (float64, error) {
	v, ok := r[string(n)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRating, string(n))
	}
	return v, nil
}

type unaryNode struct {
	op byte
	x  node
}

func (n unaryNode) eval(r Ratings) (float64, error) {
	v, err := n.x.eval(r)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -v, nil
	}
	return v, nil
}

type binaryNode struct {
	op   byte
	l, r node
}

func (n binaryNode) eval(r Ratings) (float64, error) {
	a, err := n.l.eval(r)
	if err != nil {
		return 0, err
	}
	b, err := n.r.eval(r)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	default:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}
}

type callNode struct {
	name string
	fn   func([]float64) float64
	args []node
}

func (n callNode) eval(r Ratings) (float64, error) {
	vals := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(r)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	return n.fn(vals), nil
}

type function struct {
	minArgs, maxArgs int
	apply            func([]float64) float64
}

var functions = map[string]function{
	"min": {1, -1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {1, -1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"abs":   {1, 1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"round": {1, 1, func(a []float64) float64 { return math.Floor(a[0] + 0.5) }},
	"floor": {1, 1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, 1, func(a []float64) float64 { return math.Ceil(a[0]) }},
}

func collectRefs(n node, visit func(string)) {
	switch x := n.(type) {
	case refNode:
		visit(string(x))
	case unaryNode:
		collectRefs(x.x, visit)
	case binaryNode:
		collectRefs(x.l, visit)
		collectRefs(x.r, visit)
	case callNode:
		for _, a := range x.args {
			collectRefs(a, visit)
		}
	}
}
