// Package grammar parses and generates targeting expressions such as
//
//	mkt_sgm ![value = "gold"] && (geo [loc = 2.35,48.85,10] || vip [value = true])
//
// Parse turns text into a tree of Feature and Logical nodes and Generate turns a tree
// back into canonical text.
package grammar

import "slices"

type Node interface {
	node()
}

type LogicalOperator string

const (
	And LogicalOperator = "$and"
	Or  LogicalOperator = "$or"
)

func (o LogicalOperator) Valid() bool {
	return o == And || o == Or
}

// Connective is the text form of the operator ("&&" or "||").
func (o LogicalOperator) Connective() string {
	if o == Or {
		return "||"
	}
	return "&&"
}

type Operator string

const (
	Equal          Operator = "="
	Greater        Operator = ">"
	Less           Operator = "<"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

func (o Operator) Valid() bool {
	switch o {
	case Equal, Greater, Less, GreaterOrEqual, LessOrEqual:
		return true
	}
	return false
}

// TestKind names one of the three tests a feature may carry.
type TestKind int

const (
	ValueTest TestKind = iota
	LocTest
	TimeTest
)

// TestKinds lists the kinds in emission order.
var TestKinds = []TestKind{ValueTest, LocTest, TimeTest}

func (k TestKind) String() string {
	switch k {
	case LocTest:
		return "loc"
	case TimeTest:
		return "time"
	default:
		return "value"
	}
}

type Test struct {
	Operator Operator
	Operand  Operand
}

// Metadata carries caller bookkeeping (ids, editor state) alongside a node. It never
// reaches generated text.
type Metadata map[string]any

type Feature struct {
	Name     string
	Inverted bool
	Value    *Test
	Loc      *Test
	Time     *Test
	Meta     Metadata
}

func (*Feature) node() {}

func (f *Feature) Test(kind TestKind) *Test {
	switch kind {
	case LocTest:
		return f.Loc
	case TimeTest:
		return f.Time
	default:
		return f.Value
	}
}

// SetTest replaces the test of the given kind; a later test of the same kind wins.
func (f *Feature) SetTest(kind TestKind, t *Test) {
	switch kind {
	case LocTest:
		f.Loc = t
	case TimeTest:
		f.Time = t
	default:
		f.Value = t
	}
}

func (f *Feature) HasTest() bool {
	return f.Value != nil || f.Loc != nil || f.Time != nil
}

type Logical struct {
	Op       LogicalOperator
	Children []Node
	Meta     Metadata
}

func (*Logical) node() {}

func NewAnd(children ...Node) *Logical {
	return &Logical{Op: And, Children: children}
}

func NewOr(children ...Node) *Logical {
	return &Logical{Op: Or, Children: children}
}

// Features returns every feature of the tree in document order.
func Features(n Node) []*Feature {
	var out []*Feature
	Walk(n, func(n Node) bool {
		if f, ok := n.(*Feature); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

// Walk visits n depth-first. Children are skipped when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if l, ok := n.(*Logical); ok {
		for _, c := range l.Children {
			Walk(c, fn)
		}
	}
}

// FeatureNames returns the distinct feature names of the tree, sorted.
func FeatureNames(n Node) []string {
	var names []string
	for _, f := range Features(n) {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
