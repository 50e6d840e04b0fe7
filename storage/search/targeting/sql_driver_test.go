package targeting

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
)

func exists(conds ...string) string {
	return "EXISTS (SELECT 1 FROM profile_features pf WHERE pf.profile_id = profiles.id AND pf.name = ?" +
		strings.Join(append([]string{""}, conds...), " AND ") + ")"
}

func mustParse(t *testing.T, query string) grammar.Node {
	t.Helper()
	n, err := grammar.Parse(query)
	if err != nil {
		t.Fatalf("grammar.Parse(%q) error = %v", query, err)
	}
	return n
}

func TestSQLDriver_Render(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "string value",
			query:      `f1[value="gold"]`,
			wantSQL:    exists("pf.str_value = ?"),
			wantParams: []any{"f1", "gold"},
		},
		{
			name:       "inverted numeric value",
			query:      `f1![value>=10]`,
			wantSQL:    "NOT " + exists("pf.num_value >= ?"),
			wantParams: []any{"f1", float64(10)},
		},
		{
			name:       "boolean value",
			query:      `f1[value=true]`,
			wantSQL:    exists("pf.bool_value = ?"),
			wantParams: []any{"f1", true},
		},
		{
			name:       "location inside square",
			query:      `f1[loc<=2,48,1.5]`,
			wantSQL:    exists("pf.lng BETWEEN ? AND ? AND pf.lat BETWEEN ? AND ?"),
			wantParams: []any{"f1", 0.5, 3.5, 46.5, 49.5},
		},
		{
			name:       "location outside square with negative radius",
			query:      `f1[loc>2,48,-1]`,
			wantSQL:    exists("NOT (pf.lng BETWEEN ? AND ? AND pf.lat BETWEEN ? AND ?)"),
			wantParams: []any{"f1", 1.0, 3.0, 47.0, 49.0},
		},
		{
			name:       "location operand in value test",
			query:      `f1[value=10,42,0]`,
			wantSQL:    exists("pf.lng BETWEEN ? AND ? AND pf.lat BETWEEN ? AND ?"),
			wantParams: []any{"f1", 10.0, 10.0, 42.0, 42.0},
		},
		{
			name:       "timestamp time",
			query:      `f1[time<"2024-01-01T00:00:00Z"]`,
			wantSQL:    exists("pf.time < ?"),
			wantParams: []any{"f1", float64(1704067200)},
		},
		{
			name:       "all tests in order",
			query:      `f1[time>1 value='x' loc=0,0,1]`,
			wantSQL:    exists("pf.str_value = ?", "pf.lng BETWEEN ? AND ? AND pf.lat BETWEEN ? AND ?", "pf.time > ?"),
			wantParams: []any{"f1", "x", -1.0, 1.0, -1.0, 1.0, float64(1)},
		},
		{
			name:    "nested logicals",
			query:   `f1[value=1] && (f2[value=2] || f3[value=3])`,
			wantSQL: "(" + exists("pf.num_value = ?") + ") AND ((" + exists("pf.num_value = ?") + ") OR (" + exists("pf.num_value = ?") + "))",
			wantParams: []any{
				"f1", float64(1), "f2", float64(2), "f3", float64(3),
			},
		},
	}

	driver := NewSQLDriver("sqlite", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := driver.Render(mustParse(t, tt.query))
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("Render() sql = %v, want %v", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(params, tt.wantParams) {
				t.Errorf("Render() params = %v, want %v", params, tt.wantParams)
			}
		})
	}
}

func TestSQLDriver_RenderErrors(t *testing.T) {
	tests := []struct {
		name string
		node grammar.Node
	}{
		{name: "boolean with ordering operator", node: mustParse(t, `f1[value>true]`)},
		{name: "boolean time", node: mustParse(t, `f1[time=true]`)},
		{name: "unparseable timestamp", node: mustParse(t, `f1[time="yesterday"]`)},
		{name: "scalar location", node: mustParse(t, `f1[loc=14]`)},
		{name: "logical without children", node: &grammar.Logical{Op: grammar.And}},
		{name: "unknown logical", node: &grammar.Logical{Op: "$xor", Children: []grammar.Node{mustParse(t, `f1[value=1]`)}}},
		{name: "feature without test", node: &grammar.Feature{Name: "f1"}},
		{name: "invalid operator", node: &grammar.Feature{Name: "f1", Value: &grammar.Test{Operator: "!=", Operand: grammar.Int(1)}}},
		{name: "nil node", node: nil},
	}

	driver := NewSQLDriver("postgresql", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := driver.RenderParam(tt.node)
			var badRequest *serviceErrors.BadRequest
			if !errors.As(err, &badRequest) {
				t.Errorf("RenderParam() error = %v, want *errors.BadRequest", err)
			}
		})
	}
}

func TestSQLDriver_RenderParam(t *testing.T) {
	node := mustParse(t, `f1[value=1] || f2![value="a"]`)
	tests := []struct {
		name     string
		provider string
		schema   string
		want     string
	}{
		{
			name:     "postgresql",
			provider: "postgresql",
			schema:   "targeting",
			want: "(EXISTS (SELECT 1 FROM targeting.profile_features pf WHERE pf.profile_id = targeting.profiles.id AND pf.name = $1 AND pf.num_value = $2)) OR " +
				"(NOT EXISTS (SELECT 1 FROM targeting.profile_features pf WHERE pf.profile_id = targeting.profiles.id AND pf.name = $3 AND pf.str_value = $4))",
		},
		{
			name:     "mysql",
			provider: "mysql",
			want:     "(" + exists("pf.num_value = ?") + ") OR (NOT " + exists("pf.str_value = ?") + ")",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewSQLDriver(tt.provider, tt.schema).RenderParam(node)
			if err != nil {
				t.Fatalf("RenderParam() error = %v", err)
			}
			if sql != tt.want {
				t.Errorf("RenderParam() sql = %v, want %v", sql, tt.want)
			}
			if len(params) != 4 {
				t.Errorf("RenderParam() params count = %v, want 4", len(params))
			}
		})
	}

	if _, _, err := NewSQLDriver("oracle", "").RenderParam(node); err == nil {
		t.Error("RenderParam() accepted an unsupported provider")
	}
}
