// Package lucene turns free-text Lucene queries into SQL and PartiQL filters over a fixed
// set of columns. Unfielded terms search every implicit field with a contains match.
package lucene

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	lucene "github.com/grindlemire/go-lucene"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"
)

// Safety limits for query parsing
const (
	DefaultMaxQueryLength = 10000
	DefaultMaxDepth       = 20
	DefaultMaxTerms       = 100
)

// implicitField is the column go-lucene assigns to unfielded terms. Drivers expand it
// across the implicit search fields.
const implicitField = "_text"

// FieldInfo describes a searchable field.
type FieldInfo struct {
	Name           string
	ImplicitSearch bool // Whether this field is included in unfielded queries
}

// InvalidFieldError represents an error when a query references a non-existent field
type InvalidFieldError struct {
	Field       string
	ValidFields []string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field '%s' in query; valid fields are: %s", e.Field, strings.Join(e.ValidFields, ", "))
}

// Parser provides Lucene query parsing with security limits.
type Parser struct {
	Fields []FieldInfo

	MaxQueryLength int
	MaxDepth       int
	MaxTerms       int

	fieldMap map[string]FieldInfo
}

func NewParser(fields []FieldInfo) (*Parser, error) {
	fieldMap, err := buildFieldMap(fields)
	if err != nil {
		return nil, err
	}
	return &Parser{
		Fields:         fields,
		MaxQueryLength: DefaultMaxQueryLength,
		MaxDepth:       DefaultMaxDepth,
		MaxTerms:       DefaultMaxTerms,
		fieldMap:       fieldMap,
	}, nil
}

// NewParserFromType creates a parser from the json-tagged fields of a struct. String fields
// are searched by unfielded terms unless tagged lucene:"explicit"; lucene:"implicit" forces
// them in and lucene:"-" hides a field.
func NewParserFromType(model any) (*Parser, error) {
	t := reflect.TypeOf(model)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %v", t)
	}

	var fields []FieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		tag := field.Tag.Get("lucene")
		if name == "" || name == "-" || tag == "-" {
			continue
		}
		implicit := field.Type.Kind() == reflect.String
		switch tag {
		case "implicit":
			implicit = true
		case "explicit":
			implicit = false
		}
		fields = append(fields, FieldInfo{Name: name, ImplicitSearch: implicit})
	}
	return NewParser(fields)
}

func buildFieldMap(fields []FieldInfo) (map[string]FieldInfo, error) {
	fieldMap := make(map[string]FieldInfo, len(fields))
	for _, f := range fields {
		if _, ok := fieldMap[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field name: %s", f.Name)
		}
		fieldMap[f.Name] = f
	}
	return fieldMap, nil
}

// Parse validates query against the limits and the known fields and returns its expression.
// An empty query yields a nil expression.
func (p *Parser) Parse(query string) (*expr.Expression, error) {
	if err := p.validateQuery(query); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	e, err := lucene.Parse(query, lucene.WithDefaultField(implicitField))
	if err != nil {
		return nil, fmt.Errorf("invalid search query: %w", err)
	}
	if err := p.validateFields(e); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseToSQL parses a Lucene query and renders it for the given SQL provider.
func (p *Parser) ParseToSQL(query string, provider string) (string, []any, error) {
	slog.Debug("Parsing query to SQL", slog.String("query", query), slog.String("provider", provider))
	e, err := p.Parse(query)
	if err != nil {
		return "", nil, err
	}
	return NewSQLDriver(p.implicitFields(), provider).RenderParam(e)
}

// ParseToSQLCondition is ParseToSQL with ? placeholders for every provider, the form gorm
// binds itself.
func (p *Parser) ParseToSQLCondition(query string, provider string) (string, []any, error) {
	e, err := p.Parse(query)
	if err != nil {
		return "", nil, err
	}
	return NewSQLDriver(p.implicitFields(), provider).Render(e)
}

// ParseToDynamoDBPartiQL parses a Lucene query and renders it to DynamoDB PartiQL.
func (p *Parser) ParseToDynamoDBPartiQL(query string) (string, []types.AttributeValue, error) {
	slog.Debug("Parsing query to DynamoDB PartiQL", slog.String("query", query))
	e, err := p.Parse(query)
	if err != nil {
		return "", nil, err
	}
	return NewDynamoDBDriver(p.implicitFields()).RenderPartiQL(e)
}

func (p *Parser) validateQuery(query string) error {
	if len(query) > p.MaxQueryLength {
		return fmt.Errorf("query too long: %d bytes exceeds maximum of %d bytes", len(query), p.MaxQueryLength)
	}
	if depth := nestingDepth(query); depth > p.MaxDepth {
		return fmt.Errorf("query too complex: nesting depth %d exceeds maximum of %d", depth, p.MaxDepth)
	}
	if terms := countTerms(query); terms > p.MaxTerms {
		return fmt.Errorf("query too large: %d terms exceeds maximum of %d", terms, p.MaxTerms)
	}
	return nil
}

// validateFields walks e and rejects columns that are neither known fields nor the
// implicit column.
func (p *Parser) validateFields(e *expr.Expression) error {
	var check func(v any) error
	check = func(v any) error {
		switch v := v.(type) {
		case expr.Column:
			name := string(v)
			if name == implicitField {
				return nil
			}
			if _, ok := p.fieldMap[name]; !ok {
				return &InvalidFieldError{Field: name, ValidFields: p.fieldNames()}
			}
		case *expr.Expression:
			if v == nil {
				return nil
			}
			if err := check(v.Left); err != nil {
				return err
			}
			return check(v.Right)
		case []*expr.Expression:
			for _, ex := range v {
				if err := check(ex); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return check(e)
}

func (p *Parser) fieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		names = append(names, f.Name)
	}
	return names
}

func (p *Parser) implicitFields() []string {
	var names []string
	for _, f := range p.Fields {
		if f.ImplicitSearch {
			names = append(names, f.Name)
		}
	}
	return names
}

func nestingDepth(query string) int {
	maxDepth, depth := 0, 0
	inQuotes := false
	for i := 0; i < len(query); i++ {
		switch c := query[i]; {
		case c == '\\':
			i++
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '(' || c == '[' || c == '{':
			depth++
			maxDepth = max(maxDepth, depth)
		case c == ')' || c == ']' || c == '}':
			depth--
		}
	}
	return maxDepth
}

// countTerms counts whitespace separated terms outside quotes, ignoring boolean keywords.
func countTerms(query string) int {
	var terms int
	var current strings.Builder
	inQuotes := false
	flush := func() {
		word := current.String()
		current.Reset()
		if word == "" || slices.Contains([]string{"AND", "OR", "NOT", "&&", "||"}, strings.ToUpper(word)) {
			return
		}
		terms++
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			current.WriteByte(c)
		case inQuotes:
			current.WriteByte(c)
		case c == ' ' || c == '\t' || c == '(' || c == ')':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return terms
}
