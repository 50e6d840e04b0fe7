package grammar

import (
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

const (
	// StartQuery parses a whole expression.
	StartQuery = "query"
	// StartRequest parses a single feature.
	StartRequest = "request"
)

type parseOptions struct {
	startRule string
}

type ParseOption func(*parseOptions)

func WithStartRule(rule string) ParseOption {
	return func(o *parseOptions) {
		o.startRule = rule
	}
}

// Parse reads a targeting expression. AND binds tighter than OR, parentheses group, and
// a lone operand is returned unwrapped. Any failure is a *SyntaxError describing the
// furthest position reached, or an *UnknownStartRuleError.
func Parse(text string, opts ...ParseOption) (Node, error) {
	o := parseOptions{startRule: StartQuery}
	for _, opt := range opts {
		opt(&o)
	}

	p := &parser{input: []rune(text)}
	var start func() (Node, bool)
	switch o.startRule {
	case StartQuery:
		start = p.parseQuery
	case StartRequest:
		start = p.parseRequest
	default:
		return nil, &UnknownStartRuleError{Rule: o.startRule}
	}

	n, ok := start()
	if ok && !p.fatal && p.pos == len(p.input) {
		return n, nil
	}
	if ok && !p.fatal {
		p.fail(endOfInput)
	}
	return nil, p.syntaxError()
}

// parser is a backtracking recursive-descent parser. Every failed match records what was
// expected at that position and only the furthest position is kept for error reporting.
type parser struct {
	input    []rune
	pos      int
	failPos  int
	expected []string
	// fatal pins the error to a matched but unusable token.
	fatal bool
}

func (p *parser) fail(desc string) {
	if p.fatal || p.pos < p.failPos {
		return
	}
	if p.pos > p.failPos {
		p.failPos = p.pos
		p.expected = p.expected[:0]
	}
	p.expected = append(p.expected, desc)
}

// failAt reports desc at pos and ignores every later failure, even one further along.
func (p *parser) failAt(pos int, desc string) {
	if p.fatal {
		return
	}
	p.failPos = pos
	p.expected = append(p.expected[:0], desc)
	p.fatal = true
}

func (p *parser) syntaxError() *SyntaxError {
	expected := slices.Clone(p.expected)
	slices.Sort(expected)
	expected = slices.Compact(expected)

	line, col := 1, 1
	for _, r := range p.input[:p.failPos] {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	found := ""
	atEnd := p.failPos >= len(p.input)
	if !atEnd {
		found = string(p.input[p.failPos])
	}
	return &SyntaxError{
		Message:  syntaxMessage(expected, found, atEnd),
		Offset:   p.failPos,
		Line:     line,
		Column:   col,
		Expected: expected,
		Found:    found,
	}
}

func (p *parser) literal(s string) bool {
	end := p.pos + len(s)
	if end <= len(p.input) && string(p.input[p.pos:end]) == s {
		p.pos = end
		return true
	}
	p.fail(describeLiteral(s))
	return false
}

func (p *parser) class(desc string, match func(rune) bool) bool {
	if p.pos < len(p.input) && match(p.input[p.pos]) {
		p.pos++
		return true
	}
	p.fail(desc)
	return false
}

func (p *parser) skipSpace() int {
	start := p.pos
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
	return p.pos - start
}

func (p *parser) parseQuery() (Node, bool) {
	p.skipSpace()
	n, ok := p.parseOr()
	if !ok {
		return nil, false
	}
	p.skipSpace()
	return n, true
}

func (p *parser) parseRequest() (Node, bool) {
	p.skipSpace()
	f, ok := p.parseFeature()
	if !ok {
		return nil, false
	}
	p.skipSpace()
	return f, true
}

func (p *parser) parseOr() (Node, bool) {
	return p.parseChain(Or, p.parseAnd)
}

func (p *parser) parseAnd() (Node, bool) {
	return p.parseChain(And, p.parsePrimary)
}

// parseChain reads operand (connective operand)* and folds it into a single Logical.
func (p *parser) parseChain(op LogicalOperator, operand func() (Node, bool)) (Node, bool) {
	first, ok := operand()
	if !ok {
		return nil, false
	}
	children := []Node{first}
	for {
		save := p.pos
		p.skipSpace()
		if !p.literal(op.Connective()) {
			p.pos = save
			break
		}
		p.skipSpace()
		next, ok := operand()
		if !ok {
			p.pos = save
			break
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, true
	}
	return &Logical{Op: op, Children: children}, true
}

func (p *parser) parsePrimary() (Node, bool) {
	start := p.pos
	if p.literal("(") {
		p.skipSpace()
		if n, ok := p.parseOr(); ok {
			p.skipSpace()
			if p.literal(")") {
				return n, true
			}
		}
		p.pos = start
	}
	return p.parseFeature()
}

func (p *parser) parseFeature() (Node, bool) {
	start := p.pos
	name, ok := p.parseIdentifier()
	if !ok {
		return nil, false
	}
	f := &Feature{Name: name}

	p.skipSpace()
	if p.literal("!") {
		f.Inverted = true
		p.skipSpace()
	}
	if !p.literal("[") {
		p.pos = start
		return nil, false
	}
	p.skipSpace()
	if !p.parseTest(f) {
		p.pos = start
		return nil, false
	}
	for {
		save := p.pos
		if p.skipSpace() == 0 || !p.parseTest(f) {
			p.pos = save
			break
		}
	}
	p.skipSpace()
	if !p.literal("]") {
		p.pos = start
		return nil, false
	}
	return f, true
}

func (p *parser) parseIdentifier() (string, bool) {
	start := p.pos
	if !p.class("[A-Za-z_]", isIdentStart) {
		return "", false
	}
	for p.class(`[A-Za-z0-9_\-]`, isIdentPart) {
	}
	return string(p.input[start:p.pos]), true
}

// parseTest reads key operator operand and stores it on f.
func (p *parser) parseTest(f *Feature) bool {
	start := p.pos
	var kind TestKind
	switch {
	case p.literal("value"):
		kind = ValueTest
	case p.literal("time"):
		kind = TimeTest
	case p.literal("loc"):
		kind = LocTest
	default:
		return false
	}

	p.skipSpace()
	op, ok := p.parseOperator()
	if !ok {
		p.pos = start
		return false
	}
	p.skipSpace()
	operand, ok := p.parseOperand()
	if !ok {
		p.pos = start
		return false
	}
	f.SetTest(kind, &Test{Operator: op, Operand: operand})
	return true
}

func (p *parser) parseOperator() (Operator, bool) {
	for _, op := range []Operator{GreaterOrEqual, Greater, LessOrEqual, Less, Equal} {
		if p.literal(string(op)) {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOperand() (Operand, bool) {
	if loc, ok := p.parseLocation(); ok {
		return loc, true
	}
	start := p.pos
	if text, ok := p.parseNumber(); ok {
		n, err := numberOperand(text)
		if err != nil {
			p.failAt(start, finiteNumber)
			return nil, false
		}
		return n, true
	}
	if s, ok := p.parseQuoted('"'); ok {
		return String(s), true
	}
	if s, ok := p.parseQuoted('\''); ok {
		return String(s), true
	}
	if p.literal("true") {
		return Bool(true), true
	}
	if p.literal("false") {
		return Bool(false), true
	}
	return nil, false
}

func (p *parser) parseLocation() (Operand, bool) {
	start := p.pos
	var parts [3]float64
	for i := range parts {
		if i > 0 {
			p.skipSpace()
			if !p.literal(",") {
				p.pos = start
				return nil, false
			}
			p.skipSpace()
		}
		partStart := p.pos
		text, ok := p.parseNumber()
		if !ok {
			p.pos = start
			return nil, false
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.failAt(partStart, finiteNumber)
			p.pos = start
			return nil, false
		}
		parts[i] = f
	}
	return Location{Lng: parts[0], Lat: parts[1], Rad: parts[2]}, true
}

// parseNumber reads -?[0-9]+(\.[0-9]+)? and returns its text.
func (p *parser) parseNumber() (string, bool) {
	start := p.pos
	p.literal("-")
	if !p.class("[0-9]", isDigit) {
		p.pos = start
		return "", false
	}
	for p.class("[0-9]", isDigit) {
	}
	save := p.pos
	if p.literal(".") {
		if p.class("[0-9]", isDigit) {
			for p.class("[0-9]", isDigit) {
			}
		} else {
			p.pos = save
		}
	}
	return string(p.input[start:p.pos]), true
}

// parseQuoted reads a non-empty string literal delimited by delim.
func (p *parser) parseQuoted(delim rune) (string, bool) {
	start := p.pos
	if !p.literal(string(delim)) {
		return "", false
	}
	var b strings.Builder
	n := 0
	for p.stringChar(delim, &b) {
		n++
	}
	if n == 0 || !p.literal(string(delim)) {
		p.pos = start
		return "", false
	}
	return b.String(), true
}

func (p *parser) stringChar(delim rune, b *strings.Builder) bool {
	if p.pos >= len(p.input) || p.input[p.pos] == delim {
		p.fail("[^" + string(delim) + "]")
		return false
	}
	if p.input[p.pos] == '\\' {
		if r, width, ok := p.escape(delim); ok {
			b.WriteRune(r)
			p.pos += width
			return true
		}
	}
	b.WriteRune(p.input[p.pos])
	p.pos++
	return true
}

// escape decodes the escape sequence at the current position. Unknown sequences are not
// escapes and the backslash is kept literally.
func (p *parser) escape(delim rune) (rune, int, bool) {
	if p.pos+1 >= len(p.input) {
		return 0, 0, false
	}
	switch c := p.input[p.pos+1]; c {
	case delim, '"', '\'', '\\', '/':
		return c, 2, true
	case 'b':
		return '\b', 2, true
	case 'f':
		return '\f', 2, true
	case 'n':
		return '\n', 2, true
	case 'r':
		return '\r', 2, true
	case 't':
		return '\t', 2, true
	case 'u':
		r, ok := p.hex4(p.pos + 2)
		if !ok {
			return 0, 0, false
		}
		if utf16.IsSurrogate(r) && p.pos+7 < len(p.input) && p.input[p.pos+6] == '\\' && p.input[p.pos+7] == 'u' {
			if r2, ok := p.hex4(p.pos + 8); ok {
				if dec := utf16.DecodeRune(r, r2); dec != unicode.ReplacementChar {
					return dec, 12, true
				}
			}
		}
		return r, 6, true
	}
	return 0, 0, false
}

func (p *parser) hex4(at int) (rune, bool) {
	if at+4 > len(p.input) {
		return 0, false
	}
	v, err := strconv.ParseUint(string(p.input[at:at+4]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r) || r == '-'
}

// ValidName reports whether name can be written as a feature name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !isIdentStart(r) || !isIdentPart(r) {
			return false
		}
	}
	return true
}
