package lucene

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/grindlemire/go-lucene/pkg/driver"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"
)

// DynamoDBDriver converts Lucene expressions to DynamoDB PartiQL. Wildcard matches map to
// begins_with and contains since PartiQL has no LIKE.
type DynamoDBDriver struct {
	driver.Base
	implicit []string
}

func NewDynamoDBDriver(implicit []string) *DynamoDBDriver {
	return &DynamoDBDriver{Base: driver.Base{RenderFNs: baseRenderFNs()}, implicit: implicit}
}

var partiQLIdentifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// RenderPartiQL renders the expression to PartiQL with AttributeValue parameters.
func (d *DynamoDBDriver) RenderPartiQL(e *expr.Expression) (string, []types.AttributeValue, error) {
	if e == nil {
		return "", nil, nil
	}
	str, params, err := d.render(e)
	if err != nil {
		return "", nil, err
	}
	attrValues := make([]types.AttributeValue, len(params))
	for i, param := range params {
		v, err := attributevalue.Marshal(param)
		if err != nil {
			return "", nil, err
		}
		attrValues[i] = v
	}
	return str, attrValues, nil
}

func (d *DynamoDBDriver) render(e *expr.Expression) (string, []any, error) {
	switch e.Op {
	case expr.Equals, expr.Like, expr.Wild:
		return d.renderMatch(e)
	case expr.Greater, expr.Less, expr.GreaterEq, expr.LessEq:
		column, err := d.column(e.Left)
		if err != nil {
			return "", nil, err
		}
		value, err := literalOf(e.Right)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", column, comparisonSymbol(e.Op)), []any{value}, nil
	case expr.Range:
		column, err := d.column(e.Left)
		if err != nil {
			return "", nil, err
		}
		lower, upper, inclusive, err := rangeOf(e.Right)
		if err != nil {
			return "", nil, err
		}
		switch {
		case lower == "*":
			return fmt.Sprintf("%s %s ?", column, map[bool]string{true: "<=", false: "<"}[inclusive]), []any{upper}, nil
		case upper == "*":
			return fmt.Sprintf("%s %s ?", column, map[bool]string{true: ">=", false: ">"}[inclusive]), []any{lower}, nil
		case inclusive:
			return column + " BETWEEN ? AND ?", []any{lower, upper}, nil
		default:
			return fmt.Sprintf("(%s > ? AND %s < ?)", column, column), []any{lower, upper}, nil
		}
	case expr.And, expr.Or:
		return renderBinary(e, d.render)
	case expr.Not, expr.MustNot, expr.Must:
		return renderUnary(e, d.render)
	case expr.Fuzzy, expr.Boost, expr.Regexp:
		return "", nil, fmt.Errorf("%s is not supported by DynamoDB filtering", e.Op)
	default:
		return d.Base.RenderParam(e)
	}
}

func (d *DynamoDBDriver) column(in any) (string, error) {
	name, err := columnOf(in)
	if err != nil {
		return "", err
	}
	if !partiQLIdentifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid field name %q: only alphanumeric and underscore allowed", name)
	}
	return `"` + name + `"`, nil
}

func (d *DynamoDBDriver) renderMatch(e *expr.Expression) (string, []any, error) {
	name, err := columnOf(e.Left)
	if err != nil {
		return "", nil, err
	}
	value, err := literalOf(e.Right)
	if err != nil {
		return "", nil, err
	}
	pattern := e.Op != expr.Equals || hasWildcards(value)

	if name == implicitField {
		if len(d.implicit) == 0 {
			return "", nil, fmt.Errorf("unfielded search terms are not supported")
		}
		if !pattern {
			value = "*" + value + "*"
		}
		var parts []string
		var params []any
		for _, f := range d.implicit {
			column, err := d.column(expr.Column(f))
			if err != nil {
				return "", nil, err
			}
			str, p := wildcardMatch(column, value)
			parts = append(parts, str)
			params = append(params, p...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", params, nil
	}

	column, err := d.column(expr.Column(name))
	if err != nil {
		return "", nil, err
	}
	if pattern {
		str, params := wildcardMatch(column, value)
		return str, params, nil
	}
	return column + " = ?", []any{value}, nil
}

// wildcardMatch maps a wildcard pattern to begins_with or contains. DynamoDB has no
// ends_with, so a leading wildcard also becomes contains.
func wildcardMatch(column, pattern string) (string, []any) {
	value := strings.Trim(pattern, "*?")
	if !strings.HasPrefix(pattern, "*") && !strings.HasPrefix(pattern, "?") {
		return fmt.Sprintf("begins_with(%s, ?)", column), []any{value}
	}
	return fmt.Sprintf("contains(%s, ?)", column), []any{value}
}
