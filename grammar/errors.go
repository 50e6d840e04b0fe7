package grammar

import (
	"fmt"
	"strings"
)

const (
	endOfInput   = "end of input"
	finiteNumber = "a finite number"
)

// SyntaxError reports the furthest position the parser reached and what it expected
// there. Offset counts characters, Line and Column start at 1.
type SyntaxError struct {
	Message  string
	Offset   int
	Line     int
	Column   int
	Expected []string
	// Found is empty at end of input.
	Found string
}

func (e *SyntaxError) Error() string {
	return e.Message
}

func (e *SyntaxError) AtEndOfInput() bool {
	return e.Found == ""
}

type UnknownStartRuleError struct {
	Rule string
}

func (e *UnknownStartRuleError) Error() string {
	return fmt.Sprintf("Can't start parsing from rule %q.", e.Rule)
}

// StructuralError reports a tree that cannot be rendered.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string {
	return e.Message
}

func structuralError(format string, args ...any) *StructuralError {
	return &StructuralError{Message: fmt.Sprintf(format, args...)}
}

func syntaxMessage(expected []string, found string, atEnd bool) string {
	var exp string
	switch len(expected) {
	case 0:
		exp = endOfInput
	case 1:
		exp = expected[0]
	default:
		exp = strings.Join(expected[:len(expected)-1], ", ") + " or " + expected[len(expected)-1]
	}
	f := endOfInput
	if !atEnd {
		f = describeLiteral(found)
	}
	return fmt.Sprintf("Expected %s but %s found.", exp, f)
}

// describeLiteral quotes s the way expectations are listed in syntax errors.
func describeLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\f':
			b.WriteString(`\f`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || (r >= 0x7f && r <= 0xff):
			fmt.Fprintf(&b, `\x%02X`, r)
		case r > 0xff && r <= 0xffff:
			fmt.Fprintf(&b, `\u%04X`, r)
		case r > 0xffff:
			fmt.Fprintf(&b, `\u{%X}`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
