package targeting

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tink3rlabs/targeting/grammar"
)

// DynamoDBDriver renders targeting trees as PartiQL conditions over profile items. Features
// live in the "features" map attribute keyed by feature name.
type DynamoDBDriver struct {
	Attribute string
}

func NewDynamoDBDriver() *DynamoDBDriver {
	return &DynamoDBDriver{Attribute: "features"}
}

// RenderPartiQL renders n to PartiQL with AttributeValue parameters.
func (d *DynamoDBDriver) RenderPartiQL(n grammar.Node) (string, []types.AttributeValue, error) {
	str, params, err := d.render(n)
	if err != nil {
		return "", nil, err
	}

	attrValues := make([]types.AttributeValue, len(params))
	for i, param := range params {
		v, err := attributevalue.Marshal(param)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal parameter %v: %w", param, err)
		}
		attrValues[i] = v
	}
	return str, attrValues, nil
}

func (d *DynamoDBDriver) render(n grammar.Node) (string, []any, error) {
	switch n := n.(type) {
	case *grammar.Feature:
		if n == nil {
			return "", nil, badRequest("null is not a valid feature")
		}
		return d.renderFeature(n)
	case *grammar.Logical:
		children, connective, err := logicalParts(n)
		if err != nil {
			return "", nil, err
		}
		if len(children) == 1 {
			return d.render(children[0])
		}
		parts := make([]string, 0, len(children))
		var params []any
		for _, c := range children {
			str, p, err := d.render(c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+str+")")
			params = append(params, p...)
		}
		return strings.Join(parts, connective), params, nil
	default:
		return "", nil, badRequest("unsupported node %T", n)
	}
}

func (d *DynamoDBDriver) renderFeature(f *grammar.Feature) (string, []any, error) {
	if !grammar.ValidName(f.Name) {
		return "", nil, badRequest("%q is not a valid feature name", f.Name)
	}
	if !f.HasTest() {
		return "", nil, badRequest("feature %q does not include value, location or time", f.Name)
	}

	path := fmt.Sprintf(`"%s"."%s"`, d.Attribute, f.Name)
	conds := []string{path + " IS NOT MISSING"}
	var params []any
	for _, kind := range grammar.TestKinds {
		t := f.Test(kind)
		if t == nil {
			continue
		}
		cond, p, err := d.renderTest(path, kind, t)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		params = append(params, p...)
	}

	str := strings.Join(conds, " AND ")
	if f.Inverted {
		return "NOT (" + str + ")", params, nil
	}
	return str, params, nil
}

func (d *DynamoDBDriver) renderTest(path string, kind grammar.TestKind, t *grammar.Test) (string, []any, error) {
	if err := checkTest(kind, t); err != nil {
		return "", nil, err
	}
	column := func(name string) string { return fmt.Sprintf(`%s."%s"`, path, name) }

	if l, ok := asLocation(t.Operand); ok {
		b := squareOf(l)
		inside := fmt.Sprintf("%s BETWEEN ? AND ? AND %s BETWEEN ? AND ?", column(ColumnLng), column(ColumnLat))
		params := []any{b.minLng, b.maxLng, b.minLat, b.maxLat}
		if outside(t.Operator) {
			// NOT on its own would also select features without coordinates
			return fmt.Sprintf("%s IS NOT MISSING AND NOT (%s)", column(ColumnLng), inside), params, nil
		}
		return inside, params, nil
	}

	switch kind {
	case grammar.ValueTest:
		name, value, err := valueColumn(t)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", column(name), t.Operator), []any{value}, nil
	case grammar.TimeTest:
		value, err := timeValue(t)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", column(ColumnTime), t.Operator), []any{value}, nil
	default:
		return "", nil, badRequest("loc test requires a location operand, got %T", t.Operand)
	}
}
