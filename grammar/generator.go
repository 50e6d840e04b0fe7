package grammar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Generate renders n as canonical text. Single-child logicals collapse into their child,
// an OR nested in an AND is parenthesized, and so is a logical nested in one of the same
// kind, so the output always parses back to an equivalent tree.
func Generate(n Node) (string, error) {
	var b strings.Builder
	if err := generate(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

func generate(b *strings.Builder, n Node) error {
	switch n := n.(type) {
	case *Feature:
		if n == nil {
			return structuralError(`"null" is not a valid feature`)
		}
		return generateFeature(b, n)
	case *Logical:
		if n == nil {
			return structuralError(`"null" is not a valid feature`)
		}
		return generateLogical(b, n)
	case nil:
		return structuralError(`"null" is not a valid feature`)
	default:
		return structuralError(`"%s" is nor a logical operator, nor a feature`, repr(n))
	}
}

func generateLogical(b *strings.Builder, l *Logical) error {
	if !l.Op.Valid() {
		return structuralError(`"%s" is nor a logical operator, nor a feature`, repr(l))
	}
	if len(l.Children) == 0 {
		return structuralError("%s has no operand", repr(l))
	}
	if len(l.Children) == 1 {
		return generate(b, l.Children[0])
	}
	for i, c := range l.Children {
		if i > 0 {
			b.WriteString(" " + l.Op.Connective() + " ")
		}
		if needsParens(l.Op, c) {
			b.WriteByte('(')
			if err := generate(b, c); err != nil {
				return err
			}
			b.WriteByte(')')
			continue
		}
		if err := generate(b, c); err != nil {
			return err
		}
	}
	return nil
}

// needsParens reports whether child, once single-child logicals are collapsed, is a
// logical that would not parse back as a single operand of parent.
func needsParens(parent LogicalOperator, child Node) bool {
	for {
		l, ok := child.(*Logical)
		if !ok || l == nil || len(l.Children) == 0 {
			return false
		}
		if len(l.Children) > 1 {
			return !(parent == Or && l.Op == And)
		}
		child = l.Children[0]
	}
}

func generateFeature(b *strings.Builder, f *Feature) error {
	if !ValidName(f.Name) {
		return structuralError("%q is not a valid feature name", f.Name)
	}
	if !f.HasTest() {
		return structuralError("%s does not include value, location or time", repr(f))
	}

	b.WriteString(f.Name)
	if f.Inverted {
		b.WriteString(" ![")
	} else {
		b.WriteString(" [")
	}
	first := true
	for _, kind := range TestKinds {
		t := f.Test(kind)
		if t == nil {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		if err := generateTest(b, kind, t); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func generateTest(b *strings.Builder, kind TestKind, t *Test) error {
	if t.Operator == "" || t.Operand == nil {
		return structuralError("%s is missing operator or operand", repr(t))
	}
	if !t.Operator.Valid() {
		return structuralError("%q is not a valid operator", string(t.Operator))
	}
	operand, err := formatOperand(t.Operand)
	if err != nil {
		return err
	}
	b.WriteString(kind.String())
	b.WriteByte(' ')
	b.WriteString(string(t.Operator))
	b.WriteByte(' ')
	b.WriteString(operand)
	return nil
}

func formatOperand(o Operand) (string, error) {
	switch o := o.(type) {
	case String:
		if o == "" {
			return "", structuralError(`"" is not a valid operand: empty strings cannot be written`)
		}
		return quoteString(string(o)), nil
	case Int:
		return strconv.FormatInt(int64(o), 10), nil
	case Float:
		if !finite(float64(o)) {
			return "", structuralError("%q is not a valid operand", strconv.FormatFloat(float64(o), 'g', -1, 64))
		}
		return formatFloat(float64(o)), nil
	case Bool:
		return strconv.FormatBool(bool(o)), nil
	case Location:
		parts := []struct {
			name  string
			value float64
		}{{"lng", o.Lng}, {"lat", o.Lat}, {"rad", o.Rad}}
		out := make([]string, len(parts))
		for i, p := range parts {
			if !finite(p.value) {
				return "", structuralError("Location part %q is not a valid %s", strconv.FormatFloat(p.value, 'g', -1, 64), p.name)
			}
			out[i] = formatCoordinate(p.value)
		}
		return strings.Join(out, ","), nil
	case *Location:
		if o == nil {
			return "", structuralError(`"null" is not a valid operand`)
		}
		return formatOperand(*o)
	default:
		return "", structuralError("%s is not a valid operand", repr(o))
	}
}

// repr is the debug representation of a rejected value used in error messages.
func repr(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
