package lucene

import (
	"fmt"
	"strings"

	"github.com/grindlemire/go-lucene/pkg/driver"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"
)

// SQLDriver renders Lucene expressions for PostgreSQL, MySQL and SQLite. Operators it does
// not intercept fall back to the go-lucene base driver.
type SQLDriver struct {
	driver.Base
	implicit []string
	provider string
}

func NewSQLDriver(implicit []string, provider string) *SQLDriver {
	return &SQLDriver{Base: driver.Base{RenderFNs: baseRenderFNs()}, implicit: implicit, provider: provider}
}

// baseRenderFNs are the go-lucene renderers used for operators the drivers do not handle.
func baseRenderFNs() map[expr.Operator]driver.RenderFN {
	fns := map[expr.Operator]driver.RenderFN{}
	for _, op := range []expr.Operator{
		expr.Literal, expr.And, expr.Or, expr.Not, expr.Equals, expr.Range, expr.Must, expr.MustNot,
		expr.Wild, expr.Regexp, expr.Like, expr.Greater, expr.GreaterEq, expr.Less, expr.LessEq,
		expr.In, expr.List,
	} {
		fns[op] = driver.Shared[op]
	}
	return fns
}

// RenderParam renders the expression with provider-specific parameter placeholders. A nil
// expression renders as an empty condition.
func (s *SQLDriver) RenderParam(e *expr.Expression) (string, []any, error) {
	str, params, err := s.Render(e)
	if err != nil {
		return "", nil, err
	}
	if s.provider == "postgresql" {
		str = convertToPostgresPlaceholders(str)
	}
	return str, params, nil
}

// Render renders the expression with ? placeholders whatever the provider.
func (s *SQLDriver) Render(e *expr.Expression) (string, []any, error) {
	switch s.provider {
	case "postgresql", "mysql", "sqlite":
	default:
		return "", nil, fmt.Errorf("unsupported SQL provider: %s", s.provider)
	}
	if e == nil {
		return "", nil, nil
	}
	return s.render(e)
}

func (s *SQLDriver) render(e *expr.Expression) (string, []any, error) {
	switch e.Op {
	case expr.Equals, expr.Like, expr.Wild:
		return s.renderMatch(e)
	case expr.Greater, expr.Less, expr.GreaterEq, expr.LessEq:
		return s.renderComparison(e)
	case expr.Range:
		return s.renderRange(e)
	case expr.And, expr.Or:
		return renderBinary(e, s.render)
	case expr.Not, expr.MustNot, expr.Must:
		return renderUnary(e, s.render)
	case expr.Fuzzy:
		return "", nil, fmt.Errorf("fuzzy search (field:term~N) is not supported; use wildcards instead (e.g., field:term*)")
	case expr.Boost:
		return "", nil, fmt.Errorf("boost operator (^) is not supported in SQL filtering; it only affects ranking/scoring")
	default:
		return s.Base.RenderParam(e)
	}
}

func (s *SQLDriver) quote(column string) string {
	if s.provider == "mysql" {
		return "`" + column + "`"
	}
	return `"` + column + `"`
}

// like renders a case-insensitive pattern match on column.
func (s *SQLDriver) like(column string) string {
	switch s.provider {
	case "postgresql":
		return fmt.Sprintf("%s::text ILIKE ?", s.quote(column))
	case "mysql":
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", s.quote(column))
	default:
		// SQLite: LIKE is already case-insensitive for ASCII
		return fmt.Sprintf("%s LIKE ?", s.quote(column))
	}
}

func (s *SQLDriver) renderMatch(e *expr.Expression) (string, []any, error) {
	column, err := columnOf(e.Left)
	if err != nil {
		return "", nil, err
	}
	value, err := literalOf(e.Right)
	if err != nil {
		return "", nil, err
	}
	pattern := e.Op != expr.Equals || hasWildcards(value)

	if column == implicitField {
		if len(s.implicit) == 0 {
			return "", nil, fmt.Errorf("unfielded search terms are not supported")
		}
		if !pattern {
			value = "*" + value + "*"
		}
		parts := make([]string, len(s.implicit))
		params := make([]any, len(s.implicit))
		for i, f := range s.implicit {
			parts[i] = s.like(f)
			params[i] = convertWildcards(value)
		}
		return "(" + strings.Join(parts, " OR ") + ")", params, nil
	}

	if pattern {
		return s.like(column), []any{convertWildcards(value)}, nil
	}
	if strings.EqualFold(value, "null") {
		return fmt.Sprintf("%s IS NULL", s.quote(column)), nil, nil
	}
	return fmt.Sprintf("%s = ?", s.quote(column)), []any{value}, nil
}

func (s *SQLDriver) renderComparison(e *expr.Expression) (string, []any, error) {
	column, err := columnOf(e.Left)
	if err != nil {
		return "", nil, err
	}
	value, err := literalOf(e.Right)
	if err != nil {
		return "", nil, err
	}
	if strings.EqualFold(value, "null") {
		return "", nil, fmt.Errorf("cannot use comparison operators (>, <, >=, <=) with null value")
	}
	return fmt.Sprintf("%s %s ?", s.quote(column), comparisonSymbol(e.Op)), []any{value}, nil
}

// renderRange handles range queries including open-ended ranges with wildcards (*).
func (s *SQLDriver) renderRange(e *expr.Expression) (string, []any, error) {
	column, err := columnOf(e.Left)
	if err != nil {
		return "", nil, err
	}
	lower, upper, inclusive, err := rangeOf(e.Right)
	if err != nil {
		return "", nil, err
	}
	col := s.quote(column)
	switch {
	case lower == "*":
		if inclusive {
			return col + " <= ?", []any{upper}, nil
		}
		return col + " < ?", []any{upper}, nil
	case upper == "*":
		if inclusive {
			return col + " >= ?", []any{lower}, nil
		}
		return col + " > ?", []any{lower}, nil
	case inclusive:
		return col + " BETWEEN ? AND ?", []any{lower, upper}, nil
	default:
		return fmt.Sprintf("(%s > ? AND %s < ?)", col, col), []any{lower, upper}, nil
	}
}

type renderFunc func(*expr.Expression) (string, []any, error)

// renderBinary renders And and Or with both sides parenthesized.
func renderBinary(e *expr.Expression, render renderFunc) (string, []any, error) {
	left, lok := e.Left.(*expr.Expression)
	right, rok := e.Right.(*expr.Expression)
	if !lok || !rok || left == nil || right == nil {
		return "", nil, fmt.Errorf("%s operator requires both left and right operands", e.Op)
	}
	leftStr, leftParams, err := render(left)
	if err != nil {
		return "", nil, err
	}
	rightStr, rightParams, err := render(right)
	if err != nil {
		return "", nil, err
	}
	connective := "AND"
	if e.Op == expr.Or {
		connective = "OR"
	}
	return fmt.Sprintf("(%s) %s (%s)", leftStr, connective, rightStr), append(leftParams, rightParams...), nil
}

// renderUnary renders Not, MustNot and Must. Only the left operand is used.
func renderUnary(e *expr.Expression, render renderFunc) (string, []any, error) {
	inner, ok := e.Left.(*expr.Expression)
	if !ok || inner == nil {
		return "", nil, fmt.Errorf("%s operator requires a left operand", e.Op)
	}
	str, params, err := render(inner)
	if err != nil {
		return "", nil, err
	}
	if e.Op == expr.Must {
		return str, params, nil
	}
	return fmt.Sprintf("NOT (%s)", str), params, nil
}

func columnOf(in any) (string, error) {
	switch v := in.(type) {
	case expr.Column:
		return string(v), nil
	case string:
		return v, nil
	case *expr.Expression:
		if v != nil && v.Op == expr.Literal {
			if col, ok := v.Left.(expr.Column); ok {
				return string(col), nil
			}
		}
	}
	return "", fmt.Errorf("unexpected column type: %T", in)
}

func literalOf(in any) (string, error) {
	switch v := in.(type) {
	case nil:
		return "", fmt.Errorf("nil value in expression")
	case string:
		return v, nil
	case *expr.Expression:
		if v != nil && (v.Op == expr.Literal || v.Op == expr.Wild) && v.Left != nil {
			return fmt.Sprintf("%v", v.Left), nil
		}
		return "", fmt.Errorf("unexpected value expression: %v", v)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func rangeOf(in any) (lower, upper string, inclusive bool, err error) {
	boundary, ok := in.(*expr.RangeBoundary)
	if !ok {
		return "", "", false, fmt.Errorf("invalid range expression structure: expected *expr.RangeBoundary, got %T", in)
	}
	if boundary.Min != nil {
		if lower, err = literalOf(boundary.Min); err != nil {
			return "", "", false, err
		}
	}
	if boundary.Max != nil {
		if upper, err = literalOf(boundary.Max); err != nil {
			return "", "", false, err
		}
	}
	if lower == "*" && upper == "*" {
		return "", "", false, fmt.Errorf("both range bounds cannot be wildcards")
	}
	return lower, upper, boundary.Inclusive, nil
}

func comparisonSymbol(op expr.Operator) string {
	switch op {
	case expr.Greater:
		return ">"
	case expr.Less:
		return "<"
	case expr.GreaterEq:
		return ">="
	case expr.LessEq:
		return "<="
	default:
		return "="
	}
}

func hasWildcards(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// convertWildcards converts Lucene wildcards to SQL wildcards.
func convertWildcards(s string) string {
	return strings.NewReplacer("*", "%", "?", "_").Replace(s)
}

// convertToPostgresPlaceholders converts ? placeholders to PostgreSQL's $N format.
func convertToPostgresPlaceholders(query string) string {
	paramIndex := 1
	var result strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&result, "$%d", paramIndex)
			paramIndex++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}
