package grammar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/valyala/fastjson"
)

var featureKeys = []string{"name", "inverted", "value", "loc", "time"}

// Tree wraps a Node so it can be embedded in JSON documents.
type Tree struct {
	Node Node
}

func (t Tree) MarshalJSON() ([]byte, error) {
	if t.Node == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.Node)
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	n, err := DecodeNode(data)
	if err != nil {
		return err
	}
	t.Node = n
	return nil
}

func (f *Feature) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	buf.WriteString(quoteString(f.Name))
	if f.Inverted {
		buf.WriteString(`,"inverted":true`)
	}
	for _, kind := range TestKinds {
		t := f.Test(kind)
		if t == nil {
			continue
		}
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, `,"%s":%s`, kind, data)
	}
	if err := writeMeta(&buf, f.Meta, featureKeys); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *Logical) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{%s:[`, quoteString(string(l.Op)))
	for i, c := range l.Children {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	if err := writeMeta(&buf, l.Meta, []string{string(And), string(Or)}); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t Test) MarshalJSON() ([]byte, error) {
	operand := []byte("null")
	if t.Operand != nil {
		var err error
		if operand, err = marshalOperand(t.Operand); err != nil {
			return nil, err
		}
	}
	return []byte(fmt.Sprintf(`{"operand":%s,"operator":%s}`, operand, quoteString(string(t.Operator)))), nil
}

func marshalOperand(o Operand) ([]byte, error) {
	switch o := o.(type) {
	case Location:
		for _, v := range []float64{o.Lng, o.Lat, o.Rad} {
			if !finite(v) {
				return nil, fmt.Errorf("location %v is not finite", o)
			}
		}
		return []byte(fmt.Sprintf(`{"lng":%s,"lat":%s,"rad":%s}`,
			formatCoordinate(o.Lng), formatCoordinate(o.Lat), formatCoordinate(o.Rad))), nil
	case *Location:
		if o == nil {
			return []byte("null"), nil
		}
		return marshalOperand(*o)
	case String:
		return []byte(quoteString(string(o))), nil
	default:
		s, err := formatOperand(o)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
}

// writeMeta appends the metadata entries, sorted by key, skipping reserved keys.
func writeMeta(buf *bytes.Buffer, meta Metadata, reserved []string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if !slices.Contains(reserved, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		data, err := json.Marshal(meta[k])
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, `,%s:%s`, quoteString(k), data)
	}
	return nil
}

// DecodeNode reads a tree from its JSON form, checking its shape as it goes. Keys that are
// not part of the tree are kept in the node's Meta.
func DecodeNode(data []byte) (Node, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, structuralError("invalid JSON: %v", err)
	}
	return decodeNode(v)
}

// GenerateJSON renders the JSON form of a tree as canonical text.
func GenerateJSON(data []byte) (string, error) {
	n, err := DecodeNode(data)
	if err != nil {
		return "", err
	}
	return Generate(n)
}

func decodeNode(v *fastjson.Value) (Node, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, structuralError(`"%s" is not a valid feature`, v.String())
	}
	o, _ := v.Object()
	switch {
	case o.Get("name") != nil:
		return decodeFeature(v, o)
	case o.Get(string(Or)) != nil:
		return decodeLogical(Or, o)
	case o.Get(string(And)) != nil:
		return decodeLogical(And, o)
	}
	return nil, structuralError(`"%s" is nor a logical operator, nor a feature`, v.String())
}

func decodeLogical(op LogicalOperator, o *fastjson.Object) (Node, error) {
	children := o.Get(string(op))
	items := []*fastjson.Value{children}
	if children.Type() == fastjson.TypeArray {
		items, _ = children.Array()
	}
	l := &Logical{Op: op, Children: make([]Node, 0, len(items))}
	for _, item := range items {
		c, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		l.Children = append(l.Children, c)
	}
	meta, err := decodeMeta(o, string(op))
	if err != nil {
		return nil, err
	}
	l.Meta = meta
	return l, nil
}

func decodeFeature(v *fastjson.Value, o *fastjson.Object) (Node, error) {
	name := o.Get("name")
	if name.Type() != fastjson.TypeString {
		return nil, structuralError("%s is not a valid feature name", name.String())
	}
	f := &Feature{Name: string(name.GetStringBytes())}

	if inv := o.Get("inverted"); inv != nil {
		switch inv.Type() {
		case fastjson.TypeTrue:
			f.Inverted = true
		case fastjson.TypeFalse, fastjson.TypeNull:
		default:
			return nil, structuralError("%s is not a valid inversion flag", inv.String())
		}
	}

	for _, kind := range TestKinds {
		part := o.Get(kind.String())
		if part == nil || part.Type() == fastjson.TypeNull {
			continue
		}
		t, err := decodeTest(part)
		if err != nil {
			return nil, err
		}
		f.SetTest(kind, t)
	}
	if !f.HasTest() {
		return nil, structuralError("%s does not include value, location or time", v.String())
	}

	meta, err := decodeMeta(o, featureKeys...)
	if err != nil {
		return nil, err
	}
	f.Meta = meta
	return f, nil
}

func decodeTest(v *fastjson.Value) (*Test, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, structuralError(`"%s" is not a valid feature part`, v.String())
	}
	operator, operand := v.Get("operator"), v.Get("operand")
	if operator == nil || operand == nil || operand.Type() == fastjson.TypeNull {
		return nil, structuralError("%s is missing operator or operand", v.String())
	}
	if operator.Type() != fastjson.TypeString {
		return nil, structuralError("%s is not a valid operator", operator.String())
	}
	op := Operator(operator.GetStringBytes())
	if op == "" {
		return nil, structuralError("%s is missing operator or operand", v.String())
	}
	if !op.Valid() {
		return nil, structuralError("%q is not a valid operator", string(op))
	}
	value, err := decodeOperand(operand)
	if err != nil {
		return nil, err
	}
	return &Test{Operator: op, Operand: value}, nil
}

func decodeOperand(v *fastjson.Value) (Operand, error) {
	switch v.Type() {
	case fastjson.TypeString:
		return String(v.GetStringBytes()), nil
	case fastjson.TypeNumber:
		text := v.String()
		if strings.ContainsAny(text, ".eE") {
			return Float(v.GetFloat64()), nil
		}
		n, err := numberOperand(text)
		if err != nil {
			return nil, structuralError("%s is not a valid operand", text)
		}
		return n, nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeObject:
		return decodeLocation(v)
	}
	return nil, structuralError("%s is not a valid operand", v.String())
}

func decodeLocation(v *fastjson.Value) (Operand, error) {
	var parts [3]float64
	for i, name := range []string{"lng", "lat", "rad"} {
		part := v.Get(name)
		if part == nil {
			return nil, structuralError(`Location part "undefined" is not a valid %s`, name)
		}
		if part.Type() != fastjson.TypeNumber {
			return nil, structuralError(`Location part "%s" is not a valid %s`, part.String(), name)
		}
		parts[i] = part.GetFloat64()
	}
	return Location{Lng: parts[0], Lat: parts[1], Rad: parts[2]}, nil
}

func decodeMeta(o *fastjson.Object, reserved ...string) (Metadata, error) {
	var meta Metadata
	var err error
	o.Visit(func(key []byte, v *fastjson.Value) {
		if err != nil || slices.Contains(reserved, string(key)) {
			return
		}
		var value any
		if e := json.Unmarshal(v.MarshalTo(nil), &value); e != nil {
			err = structuralError("%s is not a valid value for %q", v.String(), key)
			return
		}
		if meta == nil {
			meta = Metadata{}
		}
		meta[string(key)] = value
	})
	return meta, err
}
