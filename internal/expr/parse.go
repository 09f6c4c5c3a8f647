package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Env supplies the types of attributes referenced by name while parsing.
type Env map[string]Type

// Parse parses an expression in the text syntax produced by String.
//
//	$country == "US" and $price > 10
//	$main.sum($price) - $main.sum($cost)
//	$main.quantile($latency, 0.99)
//	$time.timeBucket(day)
//	$^outer                       (free reference, one scope up)
//	$added:NUMBER                 (explicit type)
func Parse(src string, env Env) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, env: env}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constant expressions.
func MustParse(src string, env Env) Expr {
	e, err := Parse(src, env)
	if err != nil {
		panic(err)
	}
	return e
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokIdent
	tokRef
	tokTime
	tokSymbol
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.' || rs[i] == 'e' || rs[i] == 'E' ||
				((rs[i] == '-' || rs[i] == '+') && (rs[i-1] == 'e' || rs[i-1] == 'E'))) {
				i++
			}
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case r == '"':
			start := i
			i++
			for i < len(rs) && rs[i] != '"' {
				if rs[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(rs) {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			i++
			toks = append(toks, token{tokString, string(rs[start:i]), start})
		case r == '$':
			start := i
			i++
			for i < len(rs) && (rs[i] == '^' || isIdentRune(rs[i]) || rs[i] == ':') {
				i++
			}
			toks = append(toks, token{tokRef, string(rs[start:i]), start})
		case r == '@':
			start := i
			i++
			for i < len(rs) && !unicode.IsSpace(rs[i]) && rs[i] != ')' && rs[i] != ',' {
				i++
			}
			toks = append(toks, token{tokTime, string(rs[start+1 : i]), start})
		case isIdentRune(r):
			start := i
			for i < len(rs) && isIdentRune(rs[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})
		default:
			start := i
			two := ""
			if i+1 < len(rs) {
				two = string(rs[i : i+2])
			}
			switch two {
			case "==", "!=", "<=", ">=":
				toks = append(toks, token{tokSymbol, two, start})
				i += 2
				continue
			}
			if !strings.ContainsRune("+-*/()<>.,", r) {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, start)
			}
			toks = append(toks, token{tokSymbol, string(r), start})
			i++
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type parser struct {
	toks []token
	pos  int
	env  Env
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind tokKind, text string) bool {
	if tok := p.peek(); tok.kind == kind && tok.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(tokSymbol, text) {
		tok := p.peek()
		return fmt.Errorf("expected %q at offset %d, got %q", text, tok.pos, tok.text)
	}
	return nil
}

func (p *parser) parseOr() (Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokIdent, "or") {
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = Binary{Op: OpOr, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (Expr, error) {
	lhs, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(tokIdent, "and") {
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		lhs = Binary{Op: OpAnd, LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.accept(tokIdent, "not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]Op{
	"==": OpIs,
	"<":  OpLessThan,
	"<=": OpLessThanOrEqual,
	">":  OpGreaterThan,
	">=": OpGreaterThanOrEqual,
}

func (p *parser) parseComparison() (Expr, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokSymbol {
		return lhs, nil
	}
	if tok.text == "!=" {
		p.next()
		rhs, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return Not{Operand: Is(lhs, rhs)}, nil
	}
	op, ok := comparisonOps[tok.text]
	if !ok {
		return lhs, nil
	}
	p.next()
	rhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return Binary{Op: op, LHS: lhs, RHS: rhs}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op Op
		switch {
		case p.accept(tokSymbol, "+"):
			op = OpAdd
		case p.accept(tokSymbol, "-"):
			op = OpSubtract
		default:
			return lhs, nil
		}
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = Binary{Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op Op
		switch {
		case p.accept(tokSymbol, "*"):
			op = OpMultiply
		case p.accept(tokSymbol, "/"):
			op = OpDivide
		default:
			return lhs, nil
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = Binary{Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept(tokSymbol, "-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if n, ok := numberOf(operand); ok {
			return Num(-n), nil
		}
		return Binary{Op: OpSubtract, LHS: Zero, RHS: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokSymbol, ".") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, fmt.Errorf("expected method name at offset %d", name.pos)
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		if e, err = p.parseMethod(e, name.text); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// parseMethod parses the arguments of recv.name( ... ) after the open paren.
func (p *parser) parseMethod(recv Expr, name string) (Expr, error) {
	switch {
	case name == string(AggCount):
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Count(datasetRef(recv)), nil

	case name == string(AggQuantile):
		operand, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		q, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Aggregate{Kind: AggQuantile, Dataset: datasetRef(recv), Operand: operand, Quantile: q}, nil

	case IsAggKind(name):
		operand, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Agg(AggKind(name), datasetRef(recv), operand), nil

	case name == "numberBucket":
		size, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		offset := 0.0
		if p.accept(tokSymbol, ",") {
			if offset, err = p.parseNumber(); err != nil {
				return nil, err
			}
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, fmt.Errorf("numberBucket size must be positive")
		}
		return NumberBucket{Operand: recv, Size: size, Offset: offset}, nil

	case name == "timeBucket":
		unit := p.next()
		if unit.kind != tokIdent || !IsTimeUnit(unit.text) {
			return nil, fmt.Errorf("unknown time unit %q at offset %d", unit.text, unit.pos)
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return TimeBucket{Operand: recv, Unit: unit.text}, nil

	default:
		return nil, fmt.Errorf("unknown method %q", name)
	}
}

// datasetRef gives an untyped receiver ref the DATASET type.
func datasetRef(e Expr) Expr {
	if r, ok := e.(Ref); ok && r.Kind == TypeUnknown {
		r.Kind = TypeDataset
		return r
	}
	return e
}

func (p *parser) parseNumber() (float64, error) {
	neg := p.accept(tokSymbol, "-")
	tok := p.next()
	if tok.kind != tokNumber {
		return 0, fmt.Errorf("expected number at offset %d, got %q", tok.pos, tok.text)
	}
	f, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", tok.text, err)
	}
	if neg {
		f = -f
	}
	return f, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", tok.text, err)
		}
		return Num(f), nil
	case tokString:
		s, err := strconv.Unquote(tok.text)
		if err != nil {
			return nil, fmt.Errorf("bad string at offset %d: %w", tok.pos, err)
		}
		return Str(s), nil
	case tokTime:
		ts, err := time.Parse(time.RFC3339Nano, tok.text)
		if err != nil {
			return nil, fmt.Errorf("bad time at offset %d: %w", tok.pos, err)
		}
		return Lit(Time(ts)), nil
	case tokRef:
		return p.parseRef(tok)
	case tokIdent:
		switch tok.text {
		case "true":
			return True, nil
		case "false":
			return False, nil
		case "null":
			return Lit(Null{}), nil
		}
		return nil, fmt.Errorf("unexpected identifier %q at offset %d", tok.text, tok.pos)
	case tokSymbol:
		if tok.text == "(" {
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	if tok.kind == tokEOF {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
}

func (p *parser) parseRef(tok token) (Expr, error) {
	body := strings.TrimPrefix(tok.text, "$")
	nest := 0
	for strings.HasPrefix(body, "^") {
		nest++
		body = body[1:]
	}
	name, typeName, typed := strings.Cut(body, ":")
	if name == "" {
		return nil, fmt.Errorf("empty reference at offset %d", tok.pos)
	}
	r := Ref{Name: name, Nest: nest}
	switch {
	case typed:
		t, err := ParseType(typeName)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", name, err)
		}
		r.Kind = t
	case nest == 0 && p.env != nil:
		r.Kind = p.env[name]
	}
	return r, nil
}
