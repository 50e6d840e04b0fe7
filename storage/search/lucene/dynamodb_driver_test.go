package lucene

import (
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"
)

func TestDynamoDBDriver_RenderPartiQL(t *testing.T) {
	tests := []struct {
		name       string
		expr       *expr.Expression
		wantQuery  string
		wantParams []types.AttributeValue
		wantErr    bool
	}{
		{
			name:       "equals",
			expr:       eq("name", "john"),
			wantQuery:  `"name" = ?`,
			wantParams: []types.AttributeValue{&types.AttributeValueMemberS{Value: "john"}},
		},
		{
			name:       "prefix",
			expr:       eq("name", "jo*"),
			wantQuery:  `begins_with("name", ?)`,
			wantParams: []types.AttributeValue{&types.AttributeValueMemberS{Value: "jo"}},
		},
		{
			name:       "suffix",
			expr:       eq("email", "*@example.com"),
			wantQuery:  `contains("email", ?)`,
			wantParams: []types.AttributeValue{&types.AttributeValueMemberS{Value: "@example.com"}},
		},
		{
			name:      "implicit term",
			expr:      eq(implicitField, "solar"),
			wantQuery: `(contains("name", ?) OR contains("email", ?))`,
			wantParams: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: "solar"},
				&types.AttributeValueMemberS{Value: "solar"},
			},
		},
		{
			name:      "must not",
			expr:      &expr.Expression{Op: expr.And, Left: eq("name", "a"), Right: &expr.Expression{Op: expr.MustNot, Left: eq("email", "b")}},
			wantQuery: `("name" = ?) AND (NOT ("email" = ?))`,
			wantParams: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: "a"},
				&types.AttributeValueMemberS{Value: "b"},
			},
		},
		{
			name:    "unsafe column",
			expr:    eq(`name" OR "1"="1`, "x"),
			wantErr: true,
		},
		{
			name:    "fuzzy",
			expr:    &expr.Expression{Op: expr.Fuzzy, Left: eq("name", "john")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, params, err := NewDynamoDBDriver([]string{"name", "email"}).RenderPartiQL(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RenderPartiQL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if query != tt.wantQuery {
				t.Errorf("RenderPartiQL() query = %v, want %v", query, tt.wantQuery)
			}
			if !reflect.DeepEqual(params, tt.wantParams) {
				t.Errorf("RenderPartiQL() params = %#v, want %#v", params, tt.wantParams)
			}
		})
	}
}
