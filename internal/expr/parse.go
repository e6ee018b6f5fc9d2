package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/fedq/internal/value"
)

// SyntaxError reports a malformed textual expression.
type SyntaxError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Offset, e.Input, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokRef
	tokString
	tokNumber
	tokDate
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	ref  ColumnRef
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Input: l.input, Offset: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '[':
		return l.lexRef()
	case c == '\'':
		return l.lexString()
	case c == '#':
		end := strings.IndexByte(l.input[l.pos+1:], '#')
		if end < 0 {
			return token{}, l.errorf(start, "unterminated date literal")
		}
		text := l.input[l.pos+1 : l.pos+1+end]
		l.pos += end + 2
		return token{kind: tokDate, text: text, pos: start}, nil
	case c == '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case c == '=':
		l.pos++
		return token{kind: tokOp, text: "=", pos: start}, nil
	case c == '<' || c == '>' || c == '!':
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '=' || (c == '<' && l.input[l.pos] == '>')) {
			l.pos++
		}
		text := l.input[start:l.pos]
		if text == "!" {
			return token{}, l.errorf(start, "unexpected '!'")
		}
		if text == "!=" {
			text = string(OpNe)
		}
		return token{kind: tokOp, text: text, pos: start}, nil
	case c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.lexNumber()
	case unicode.IsLetter(rune(c)):
		for l.pos < len(l.input) && (unicode.IsLetter(rune(l.input[l.pos])) || l.input[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: strings.ToUpper(l.input[start:l.pos]), pos: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q", c)
}

// lexRef reads [qualifier.name], [name] or [.dotted.name].
func (l *lexer) lexRef() (token, error) {
	start := l.pos
	l.pos++ // [

	var parts []string
	var cur strings.Builder
	for {
		if l.pos >= len(l.input) {
			return token{}, l.errorf(start, "unterminated column reference")
		}
		c := l.input[l.pos]
		if c == ']' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == ']' {
				cur.WriteByte(']')
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		if c == '.' && len(parts) == 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			l.pos++
			continue
		}
		cur.WriteByte(c)
		l.pos++
	}
	parts = append(parts, cur.String())

	var ref ColumnRef
	if len(parts) == 1 {
		ref.Column = parts[0]
	} else {
		ref.Source, ref.Column = parts[0], parts[1]
	}
	if ref.Column == "" {
		return token{}, l.errorf(start, "empty column name")
	}
	return token{kind: tokRef, ref: ref, pos: start}, nil
}

func (l *lexer) lexString() (token, error) {
	start := l.pos
	l.pos++ // '

	var b strings.Builder
	for {
		if l.pos >= len(l.input) {
			return token{}, l.errorf(start, "unterminated string literal")
		}
		c := l.input[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{kind: tokString, text: b.String(), pos: start}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		isExpSign := (c == '+' || c == '-') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E')
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || isExpSign {
			l.pos++
			continue
		}
		break
	}
	text := l.input[start:l.pos]
	if text == "-" || text == "." {
		return token{}, l.errorf(start, "invalid number %q", text)
	}
	return token{kind: tokNumber, text: text, pos: start}, nil
}

type parser struct {
	lex *lexer
	tok token
}

func newParser(input string) (*parser, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return p.lex.errorf(p.tok.pos, format, args...)
}

func (p *parser) keyword(word string) bool {
	return p.tok.kind == tokIdent && p.tok.text == word
}

// Parse parses the textual form of a predicate, e.g.
//
//	[sql.OrderID] = [excel.OrderID] AND [sql.OrderDate] >= #2024-01-01#
//
// AND binds tighter than OR; NOT binds tightest.
func Parse(input string) (Predicate, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return pred, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(input string) Predicate {
	pred, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return pred
}

// ParseExpr parses a single column reference or literal.
func ParseExpr(input string) (Expr, error) {
	p, err := newParser(input)
	if err != nil {
		return nil, err
	}
	e, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return e, nil
}

func (p *parser) parseOr() (Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Predicate{first}
	for p.keyword("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Predicate{first}
	for p.keyword("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if p.keyword("NOT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		term, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Term: term}, nil
	}
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Predicate, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.keyword("IS") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		negated := false
		if p.keyword("NOT") {
			negated = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if !p.keyword("NULL") {
			return nil, p.errorf("expected NULL")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return IsNull{Expr: left, Negated: negated}, nil
	}

	if p.tok.kind != tokOp {
		return nil, p.errorf("expected comparison operator")
	}
	op := Op(p.tok.text)
	if !op.Valid() {
		return nil, p.errorf("unknown operator %q", p.tok.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return Compare{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseOperand() (Expr, error) {
	tok := p.tok
	var e Expr
	switch tok.kind {
	case tokRef:
		e = tok.ref
	case tokString:
		e = Literal{Value: value.String(tok.text)}
	case tokDate:
		d, err := value.ParseDate(tok.text)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		e = Literal{Value: d}
	case tokNumber:
		v, err := parseNumber(tok.text)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		e = Literal{Value: v}
	case tokIdent:
		switch tok.text {
		case "TRUE":
			e = Literal{Value: value.Bool(true)}
		case "FALSE":
			e = Literal{Value: value.Bool(false)}
		case "NULL":
			e = Literal{Value: value.Null{}}
		default:
			return nil, p.errorf("unexpected keyword %s", tok.text)
		}
	case tokEOF:
		return nil, p.errorf("unexpected end of input")
	default:
		return nil, p.errorf("expected column reference or literal")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return e, nil
}

func parseNumber(text string) (value.Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", text)
		}
		return value.Int(n), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return value.Float(f), nil
}
