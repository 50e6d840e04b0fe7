package targeting

import (
	"fmt"
	"strings"

	"github.com/tink3rlabs/targeting/grammar"
)

// SQLDriver renders targeting trees as SQL conditions over the profiles table. It supports
// the postgresql, mysql and sqlite providers.
type SQLDriver struct {
	ProfilesTable string
	FeaturesTable string
	provider      string
}

// NewSQLDriver creates a driver for provider. A non-empty schema prefixes both tables.
func NewSQLDriver(provider string, schema string) *SQLDriver {
	d := &SQLDriver{ProfilesTable: "profiles", FeaturesTable: "profile_features", provider: provider}
	if schema != "" {
		d.ProfilesTable = schema + "." + d.ProfilesTable
		d.FeaturesTable = schema + "." + d.FeaturesTable
	}
	return d
}

// Render renders n with ? placeholders, the form gorm expects.
func (s *SQLDriver) Render(n grammar.Node) (string, []any, error) {
	return s.render(n)
}

// RenderParam renders n with provider-specific parameter placeholders.
func (s *SQLDriver) RenderParam(n grammar.Node) (string, []any, error) {
	str, params, err := s.render(n)
	if err != nil {
		return "", nil, err
	}

	// PostgreSQL uses $1, $2, $3; MySQL and SQLite use ?
	switch s.provider {
	case "postgresql":
		str = convertToPostgresPlaceholders(str)
	case "mysql", "sqlite":
	default:
		return "", nil, badRequest("unsupported SQL provider: %s", s.provider)
	}
	return str, params, nil
}

func (s *SQLDriver) render(n grammar.Node) (string, []any, error) {
	switch n := n.(type) {
	case *grammar.Feature:
		if n == nil {
			return "", nil, badRequest("null is not a valid feature")
		}
		return s.renderFeature(n)
	case *grammar.Logical:
		return s.renderLogical(n)
	default:
		return "", nil, badRequest("unsupported node %T", n)
	}
}

func (s *SQLDriver) renderLogical(l *grammar.Logical) (string, []any, error) {
	children, connective, err := logicalParts(l)
	if err != nil {
		return "", nil, err
	}
	if len(children) == 1 {
		return s.render(children[0])
	}

	parts := make([]string, 0, len(children))
	var params []any
	for _, c := range children {
		str, p, err := s.render(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+str+")")
		params = append(params, p...)
	}
	return strings.Join(parts, connective), params, nil
}

func (s *SQLDriver) renderFeature(f *grammar.Feature) (string, []any, error) {
	if !f.HasTest() {
		return "", nil, badRequest("feature %q does not include value, location or time", f.Name)
	}

	conds := []string{"pf.profile_id = " + s.ProfilesTable + ".id", "pf." + ColumnName + " = ?"}
	params := []any{f.Name}
	for _, kind := range grammar.TestKinds {
		t := f.Test(kind)
		if t == nil {
			continue
		}
		cond, p, err := s.renderTest(kind, t)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		params = append(params, p...)
	}

	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s pf WHERE %s)", s.FeaturesTable, strings.Join(conds, " AND "))
	if f.Inverted {
		return "NOT " + exists, params, nil
	}
	return exists, params, nil
}

func (s *SQLDriver) renderTest(kind grammar.TestKind, t *grammar.Test) (string, []any, error) {
	if err := checkTest(kind, t); err != nil {
		return "", nil, err
	}

	if l, ok := asLocation(t.Operand); ok {
		b := squareOf(l)
		inside := fmt.Sprintf("pf.%s BETWEEN ? AND ? AND pf.%s BETWEEN ? AND ?", ColumnLng, ColumnLat)
		params := []any{b.minLng, b.maxLng, b.minLat, b.maxLat}
		if outside(t.Operator) {
			return "NOT (" + inside + ")", params, nil
		}
		return inside, params, nil
	}

	switch kind {
	case grammar.ValueTest:
		column, value, err := valueColumn(t)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("pf.%s %s ?", column, t.Operator), []any{value}, nil
	case grammar.TimeTest:
		value, err := timeValue(t)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("pf.%s %s ?", ColumnTime, t.Operator), []any{value}, nil
	default:
		return "", nil, badRequest("loc test requires a location operand, got %T", t.Operand)
	}
}
