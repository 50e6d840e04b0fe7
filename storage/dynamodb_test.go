package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
)

// fakeDynamoDB records statements and serves items one page per call.
type fakeDynamoDB struct {
	items      map[string]map[string]types.AttributeValue
	pages      [][]map[string]types.AttributeValue
	statements []*dynamodb.ExecuteStatementInput
	putErr     error
	puts       []*dynamodb.PutItemInput
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, params)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := params.Key["id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func (f *fakeDynamoDB) ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.statements = append(f.statements, params)
	page := 0
	if params.NextToken != nil {
		fmt.Sscanf(*params.NextToken, "page-%d", &page)
	}
	out := &dynamodb.ExecuteStatementOutput{}
	if page < len(f.pages) {
		out.Items = f.pages[page]
	}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (f *fakeDynamoDB) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	return &dynamodb.ListTablesOutput{}, nil
}

func newFakeAdapter(t *testing.T, f *fakeDynamoDB) *DynamoDBAdapter {
	t.Helper()
	s, err := NewDynamoDBAdapter(f)
	if err != nil {
		t.Fatalf("NewDynamoDBAdapter() error = %v", err)
	}
	return s
}

func marshalProfile(t *testing.T, p Profile) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMapWithOptions(toDynamoProfile(&p), func(eo *attributevalue.EncoderOptions) { eo.TagKey = "json" })
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	return item
}

func TestDynamoProfileConversion(t *testing.T) {
	p := Profile{
		ID:   "a1",
		Name: "Alice",
		Features: []ProfileFeature{
			{ProfileID: "a1", Name: "tier", StrValue: ptr("gold")},
			{ProfileID: "a1", Name: "age", NumValue: ptr(30.0)},
			{ProfileID: "a1", Name: "home", Lng: ptr(2.0), Lat: ptr(48.0)},
		},
	}
	item := toDynamoProfile(&p)
	if len(item.Features) != 3 || *item.Features["tier"].StrValue != "gold" {
		t.Fatalf("toDynamoProfile() = %+v", item)
	}

	got := item.toProfile()
	want := Profile{
		ID:   "a1",
		Name: "Alice",
		Features: []ProfileFeature{
			{ProfileID: "a1", Name: "age", NumValue: ptr(30.0)},
			{ProfileID: "a1", Name: "home", Lng: ptr(2.0), Lat: ptr(48.0)},
			{ProfileID: "a1", Name: "tier", StrValue: ptr("gold")},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toProfile() = %+v, want %+v", got, want)
	}
}

func TestDynamoDBAdapter_CreateProfile(t *testing.T) {
	f := &fakeDynamoDB{}
	s := newFakeAdapter(t, f)

	if err := s.CreateProfile(context.Background(), &Profile{ID: "a1", Features: []ProfileFeature{{Name: "tier", StrValue: ptr("gold")}}}); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	put := f.puts[0]
	if aws.ToString(put.TableName) != "profiles" || aws.ToString(put.ConditionExpression) != "attribute_not_exists(id)" {
		t.Errorf("PutItem() input = %+v", put)
	}
	features, ok := put.Item["features"].(*types.AttributeValueMemberM)
	if !ok {
		t.Fatalf("features attribute = %T, want map", put.Item["features"])
	}
	if _, ok := features.Value["tier"]; !ok {
		t.Errorf("features attribute is missing tier: %v", features.Value)
	}

	f.putErr = &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "exists"}
	var conflict *serviceErrors.Conflict
	if err := s.CreateProfile(context.Background(), &Profile{ID: "a1"}); !errors.As(err, &conflict) {
		t.Errorf("CreateProfile() error = %v, want Conflict", err)
	}
}

func TestDynamoDBAdapter_GetProfile(t *testing.T) {
	f := &fakeDynamoDB{items: map[string]map[string]types.AttributeValue{
		"a1": marshalProfile(t, Profile{ID: "a1", Name: "Alice", Features: []ProfileFeature{{Name: "vip", BoolValue: ptr(true)}}}),
	}}
	s := newFakeAdapter(t, f)

	got, err := s.GetProfile(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.Name != "Alice" || len(got.Features) != 1 || !*got.Features[0].BoolValue {
		t.Errorf("GetProfile() = %+v", got)
	}
	if _, err := s.GetProfile(context.Background(), "zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrNotFound", err)
	}
}

func TestDynamoDBAdapter_Target(t *testing.T) {
	f := &fakeDynamoDB{pages: [][]map[string]types.AttributeValue{
		{marshalProfile(t, Profile{ID: "a1"})},
		{marshalProfile(t, Profile{ID: "a2"})},
	}}
	s := newFakeAdapter(t, f)

	got, next, err := s.Target(context.Background(), parse(t, `tier[value="gold"]`), Page{Limit: 1})
	if err != nil {
		t.Fatalf("Target() error = %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"a1"}) || next != "page-1" {
		t.Errorf("Target() = %v, cursor %q", ids(got), next)
	}

	input := f.statements[0]
	wantStatement := `SELECT * FROM "profiles" WHERE "features"."tier" IS NOT MISSING AND "features"."tier"."str_value" = ?`
	if aws.ToString(input.Statement) != wantStatement {
		t.Errorf("statement = %s, want %s", aws.ToString(input.Statement), wantStatement)
	}
	if aws.ToInt32(input.Limit) != 1 || len(input.Parameters) != 1 {
		t.Errorf("statement input = %+v", input)
	}
}

func TestDynamoDBAdapter_TargetCount(t *testing.T) {
	f := &fakeDynamoDB{pages: [][]map[string]types.AttributeValue{
		{marshalProfile(t, Profile{ID: "a1"}), marshalProfile(t, Profile{ID: "a2"})},
		{},
		{marshalProfile(t, Profile{ID: "a3"})},
	}}
	s := newFakeAdapter(t, f)

	got, err := s.TargetCount(context.Background(), parse(t, `age[value>18]`))
	if err != nil {
		t.Fatalf("TargetCount() error = %v", err)
	}
	if got != 3 || len(f.statements) != 3 {
		t.Errorf("TargetCount() = %d after %d statements, want 3 after 3", got, len(f.statements))
	}
}

func TestDynamoDBAdapter_Match(t *testing.T) {
	f := &fakeDynamoDB{
		items: map[string]map[string]types.AttributeValue{"a1": marshalProfile(t, Profile{ID: "a1"})},
		pages: [][]map[string]types.AttributeValue{{{"id": &types.AttributeValueMemberS{Value: "a1"}}}},
	}
	s := newFakeAdapter(t, f)

	got, err := s.Match(context.Background(), "a1", parse(t, `tier[value="gold"]`))
	if err != nil || !got {
		t.Fatalf("Match() = %v, %v", got, err)
	}
	params := f.statements[0].Parameters
	if id, ok := params[0].(*types.AttributeValueMemberS); !ok || id.Value != "a1" {
		t.Errorf("first parameter = %v, want the profile id", params[0])
	}

	if _, err := s.Match(context.Background(), "zz", parse(t, `tier[value="gold"]`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Match() error = %v, want ErrNotFound", err)
	}
}

func TestDynamoDBAdapter_Search(t *testing.T) {
	f := &fakeDynamoDB{}
	s := newFakeAdapter(t, f)

	if _, _, err := s.Search(context.Background(), "name:alice", Page{}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := aws.ToString(f.statements[0].Statement); got != `SELECT * FROM "profiles" WHERE "name" = ?` {
		t.Errorf("statement = %s", got)
	}

	var badRequest *serviceErrors.BadRequest
	if _, _, err := s.Search(context.Background(), "plan:pro", Page{}); !errors.As(err, &badRequest) {
		t.Errorf("Search() error = %v, want BadRequest", err)
	}
}
