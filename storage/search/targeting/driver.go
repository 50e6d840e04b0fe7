// Package targeting translates targeting trees into store-native filters.
//
// A feature matches a profile when the profile carries a feature with the same name whose
// columns satisfy every test of the feature. An inverted feature matches when no such
// feature exists. Location operands, whatever test they appear in, select the square of
// side 2*rad centred on (lng, lat); "=", "<" and "<=" select inside the square, ">" and
// ">=" outside of it.
package targeting

import (
	"fmt"
	"math"
	"strings"
	"time"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
)

// Columns of a stored profile feature.
const (
	ColumnName      = "name"
	ColumnStrValue  = "str_value"
	ColumnNumValue  = "num_value"
	ColumnBoolValue = "bool_value"
	ColumnTime      = "time"
	ColumnLng       = "lng"
	ColumnLat       = "lat"
)

// bounds is the bounding square of a location operand.
type bounds struct {
	minLng, maxLng float64
	minLat, maxLat float64
}

func squareOf(l grammar.Location) bounds {
	r := math.Abs(l.Rad)
	return bounds{minLng: l.Lng - r, maxLng: l.Lng + r, minLat: l.Lat - r, maxLat: l.Lat + r}
}

// outside reports whether op selects the outside of a location square.
func outside(op grammar.Operator) bool {
	return op == grammar.Greater || op == grammar.GreaterOrEqual
}

// asLocation returns the location held by an operand, if any.
func asLocation(o grammar.Operand) (grammar.Location, bool) {
	switch l := o.(type) {
	case grammar.Location:
		return l, true
	case *grammar.Location:
		if l != nil {
			return *l, true
		}
	}
	return grammar.Location{}, false
}

// valueColumn picks the column a value test compares against.
func valueColumn(t *grammar.Test) (string, any, error) {
	switch o := t.Operand.(type) {
	case grammar.String:
		return ColumnStrValue, string(o), nil
	case grammar.Int:
		return ColumnNumValue, float64(o), nil
	case grammar.Float:
		return ColumnNumValue, float64(o), nil
	case grammar.Bool:
		if t.Operator != grammar.Equal {
			return "", nil, badRequest("boolean values can only be compared with %q, got %q", grammar.Equal, t.Operator)
		}
		return ColumnBoolValue, bool(o), nil
	default:
		return "", nil, badRequest("unsupported value operand %T", t.Operand)
	}
}

// timeValue converts a time operand to Unix seconds. Strings must be RFC 3339 timestamps.
func timeValue(t *grammar.Test) (float64, error) {
	switch o := t.Operand.(type) {
	case grammar.Int:
		return float64(o), nil
	case grammar.Float:
		return float64(o), nil
	case grammar.String:
		ts, err := time.Parse(time.RFC3339, string(o))
		if err != nil {
			return 0, badRequest("time operand %q is not an RFC 3339 timestamp", string(o))
		}
		return float64(ts.UnixNano()) / float64(time.Second), nil
	default:
		return 0, badRequest("time cannot be compared to %T", t.Operand)
	}
}

func checkTest(kind grammar.TestKind, t *grammar.Test) error {
	if t.Operand == nil {
		return badRequest("%s test has no operand", kind)
	}
	if !t.Operator.Valid() {
		return badRequest("%q is not a valid operator", string(t.Operator))
	}
	return nil
}

// logicalParts returns the children of l, or an error when there are none.
func logicalParts(l *grammar.Logical) ([]grammar.Node, string, error) {
	if l == nil || len(l.Children) == 0 {
		return nil, "", badRequest("logical operator has no operand")
	}
	switch l.Op {
	case grammar.And:
		return l.Children, " AND ", nil
	case grammar.Or:
		return l.Children, " OR ", nil
	default:
		return nil, "", badRequest("%q is not a logical operator", string(l.Op))
	}
}

func badRequest(format string, args ...any) error {
	return &serviceErrors.BadRequest{Message: fmt.Sprintf(format, args...)}
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
