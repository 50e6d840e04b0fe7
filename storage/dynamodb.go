package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
	"github.com/tink3rlabs/targeting/storage/search/lucene"
	search "github.com/tink3rlabs/targeting/storage/search/targeting"
)

// DynamoDBClient is the subset of the DynamoDB API the adapter uses.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
}

type DynamoDBAdapter struct {
	DB       DynamoDBClient
	config   map[string]string
	driver   *search.DynamoDBDriver
	searcher *lucene.Parser
}

// dynamoProfile is the item layout of a profile. Features are a map attribute keyed by
// feature name so PartiQL can address them as "features"."name".
type dynamoProfile struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name,omitempty"`
	Email     string                   `json:"email,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	Features  map[string]dynamoFeature `json:"features,omitempty"`
}

type dynamoFeature struct {
	StrValue  *string  `json:"str_value,omitempty"`
	NumValue  *float64 `json:"num_value,omitempty"`
	BoolValue *bool    `json:"bool_value,omitempty"`
	Time      *float64 `json:"time,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
}

var dynamoDBAdapterLock = &sync.Mutex{}
var dynamoDBAdapterInstance *DynamoDBAdapter

func GetDynamoDBAdapterInstance(config map[string]string) (*DynamoDBAdapter, error) {
	dynamoDBAdapterLock.Lock()
	defer dynamoDBAdapterLock.Unlock()
	if dynamoDBAdapterInstance == nil {
		adapter := &DynamoDBAdapter{config: config}
		if err := adapter.OpenConnection(); err != nil {
			return nil, err
		}
		dynamoDBAdapterInstance = adapter
	}
	return dynamoDBAdapterInstance, nil
}

// NewDynamoDBAdapter wraps an existing client.
func NewDynamoDBAdapter(client DynamoDBClient) (*DynamoDBAdapter, error) {
	s := &DynamoDBAdapter{DB: client, config: map[string]string{}}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DynamoDBAdapter) OpenConnection() error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.config["region"])}
	if s.config["access_key"] != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.config["access_key"], s.config["secret_key"], ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return fmt.Errorf("failed to open a database connection: %w", err)
	}

	s.DB = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if s.config["endpoint"] != "" {
			o.BaseEndpoint = aws.String(s.config["endpoint"])
		}
	})
	return s.init()
}

func (s *DynamoDBAdapter) init() error {
	searcher, err := lucene.NewParserFromType(Profile{})
	if err != nil {
		return fmt.Errorf("failed to create search parser: %w", err)
	}
	s.searcher = searcher
	s.driver = search.NewDynamoDBDriver()
	return nil
}

func (s *DynamoDBAdapter) Execute(statement string) error {
	_, err := s.DB.ExecuteStatement(context.TODO(), &dynamodb.ExecuteStatementInput{Statement: &statement})
	if err != nil {
		return fmt.Errorf("failed to execute statement %s: %v", statement, err)
	}
	return nil
}

func (s *DynamoDBAdapter) Ping(ctx context.Context) error {
	// dynamodb is a managed service so as long as it responds to api calls we can consider it up
	_, err := s.DB.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	return err
}

func (s *DynamoDBAdapter) GetType() StorageAdapterType {
	return DYNAMODB
}

func (s *DynamoDBAdapter) GetProvider() StorageProviders {
	return ""
}

func (s *DynamoDBAdapter) GetSchemaName() string {
	return ""
}

// Tables are provisioned outside the service, so there is nothing to migrate.
func (s *DynamoDBAdapter) CreateSchema() error {
	return nil
}

func (s *DynamoDBAdapter) CreateMigrationTable() error {
	return nil
}

func (s *DynamoDBAdapter) UpdateMigrationTable(id int, name string, desc string) error {
	return nil
}

func (s *DynamoDBAdapter) GetLatestMigration() (int, error) {
	return 0, nil
}

func (s *DynamoDBAdapter) CreateProfile(ctx context.Context, profile *Profile) error {
	if err := s.put(ctx, toDynamoProfile(profile), tableName(profile)); err != nil {
		if isConditionalCheckFailure(err) {
			return &serviceErrors.Conflict{Message: fmt.Sprintf("profile %s already exists", profile.ID)}
		}
		return err
	}
	return nil
}

func (s *DynamoDBAdapter) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var item dynamoProfile
	if err := s.get(ctx, id, tableName(Profile{}), &item); err != nil {
		return nil, err
	}
	profile := item.toProfile()
	return &profile, nil
}

func (s *DynamoDBAdapter) Target(ctx context.Context, n grammar.Node, page Page) ([]Profile, string, error) {
	where, params, err := s.driver.RenderPartiQL(n)
	if err != nil {
		return nil, "", err
	}
	var items []dynamoProfile
	next, err := s.query(ctx, s.selectProfiles(where), params, page, &items)
	if err != nil {
		return nil, "", err
	}
	return toProfiles(items), next, nil
}

func (s *DynamoDBAdapter) TargetCount(ctx context.Context, n grammar.Node) (int64, error) {
	where, params, err := s.driver.RenderPartiQL(n)
	if err != nil {
		return 0, err
	}
	statement := fmt.Sprintf(`SELECT "id" FROM "%s" WHERE %s`, tableName(Profile{}), where)

	var total int64
	var nextToken *string
	for {
		response, err := s.DB.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
			Statement:  aws.String(statement),
			Parameters: params,
			NextToken:  nextToken,
		})
		if err != nil {
			slog.Error("Error counting targeted profiles", slog.Any("error", err))
			return 0, fmt.Errorf("failed to count items, %v", err)
		}
		total += int64(len(response.Items))
		if response.NextToken == nil {
			return total, nil
		}
		nextToken = response.NextToken
	}
}

func (s *DynamoDBAdapter) Match(ctx context.Context, id string, n grammar.Node) (bool, error) {
	where, params, err := s.driver.RenderPartiQL(n)
	if err != nil {
		return false, err
	}
	if _, err := s.GetProfile(ctx, id); err != nil {
		return false, err
	}

	statement := fmt.Sprintf(`SELECT "id" FROM "%s" WHERE "id" = ? AND (%s)`, tableName(Profile{}), where)
	var nextToken *string
	for {
		response, err := s.DB.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
			Statement:  aws.String(statement),
			Parameters: append([]types.AttributeValue{&types.AttributeValueMemberS{Value: id}}, params...),
			NextToken:  nextToken,
		})
		if err != nil {
			return false, fmt.Errorf("failed to match profile, %v", err)
		}
		if len(response.Items) > 0 {
			return true, nil
		}
		if response.NextToken == nil {
			return false, nil
		}
		nextToken = response.NextToken
	}
}

func (s *DynamoDBAdapter) Search(ctx context.Context, query string, page Page) ([]Profile, string, error) {
	where, params, err := s.searcher.ParseToDynamoDBPartiQL(query)
	if err != nil {
		return nil, "", &serviceErrors.BadRequest{Message: err.Error()}
	}
	var items []dynamoProfile
	next, err := s.query(ctx, s.selectProfiles(where), params, page, &items)
	if err != nil {
		return nil, "", err
	}
	return toProfiles(items), next, nil
}

func (s *DynamoDBAdapter) CreateSegment(ctx context.Context, segment *Segment) error {
	if err := s.put(ctx, segment, tableName(segment)); err != nil {
		if isConditionalCheckFailure(err) {
			return &serviceErrors.Conflict{Message: fmt.Sprintf("segment %s already exists", segment.ID)}
		}
		return err
	}
	return nil
}

func (s *DynamoDBAdapter) GetSegment(ctx context.Context, id string) (*Segment, error) {
	var segment Segment
	if err := s.get(ctx, id, tableName(segment), &segment); err != nil {
		return nil, err
	}
	return &segment, nil
}

func (s *DynamoDBAdapter) ListSegments(ctx context.Context, page Page) ([]Segment, string, error) {
	var segments []Segment
	statement := fmt.Sprintf(`SELECT * FROM "%s"`, tableName(Segment{}))
	next, err := s.query(ctx, statement, nil, page, &segments)
	if err != nil {
		return nil, "", err
	}
	return segments, next, nil
}

func (s *DynamoDBAdapter) selectProfiles(where string) string {
	statement := fmt.Sprintf(`SELECT * FROM "%s"`, tableName(Profile{}))
	if where != "" {
		statement += " WHERE " + where
	}
	return statement
}

// put writes item unless an item with the same id already exists.
func (s *DynamoDBAdapter) put(ctx context.Context, item any, table string) error {
	i, err := attributevalue.MarshalMapWithOptions(item, func(eo *attributevalue.EncoderOptions) { eo.TagKey = "json" })
	if err != nil {
		return fmt.Errorf("failed to marshal input item into dynamodb item, %v", err)
	}
	_, err = s.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                i,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (s *DynamoDBAdapter) get(ctx context.Context, id string, table string, dest any) error {
	response, err := s.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return fmt.Errorf("failed to get item, %v", err)
	}
	if response.Item == nil {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMapWithOptions(response.Item, dest, func(eo *attributevalue.DecoderOptions) { eo.TagKey = "json" }); err != nil {
		return fmt.Errorf("failed to unmarshal dynamodb Get result into dest, %v", err)
	}
	return nil
}

// query runs one page of statement. The cursor is DynamoDB's own NextToken.
func (s *DynamoDBAdapter) query(ctx context.Context, statement string, params []types.AttributeValue, page Page, dest any) (string, error) {
	input := dynamodb.ExecuteStatementInput{
		Statement:  aws.String(statement),
		Parameters: params,
		Limit:      aws.Int32(int32(page.limit())),
	}
	if page.Cursor != "" {
		input.NextToken = aws.String(page.Cursor)
	}

	response, err := s.DB.ExecuteStatement(ctx, &input)
	if err != nil {
		return "", fmt.Errorf("failed to list items, %v", err)
	}
	err = attributevalue.UnmarshalListOfMapsWithOptions(response.Items, dest, func(eo *attributevalue.DecoderOptions) { eo.TagKey = "json" })
	if err != nil {
		return "", fmt.Errorf("failed to unmarshal statement response into item list, %v", err)
	}
	return aws.ToString(response.NextToken), nil
}

func isConditionalCheckFailure(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func toDynamoProfile(p *Profile) dynamoProfile {
	item := dynamoProfile{ID: p.ID, Name: p.Name, Email: p.Email, CreatedAt: p.CreatedAt}
	if len(p.Features) > 0 {
		item.Features = make(map[string]dynamoFeature, len(p.Features))
		for _, f := range p.Features {
			item.Features[f.Name] = dynamoFeature{
				StrValue:  f.StrValue,
				NumValue:  f.NumValue,
				BoolValue: f.BoolValue,
				Time:      f.Time,
				Lng:       f.Lng,
				Lat:       f.Lat,
			}
		}
	}
	return item
}

// toProfile converts the item back, with features ordered by name.
func (d dynamoProfile) toProfile() Profile {
	p := Profile{ID: d.ID, Name: d.Name, Email: d.Email, CreatedAt: d.CreatedAt}
	for name, f := range d.Features {
		p.Features = append(p.Features, ProfileFeature{
			ProfileID: d.ID,
			Name:      name,
			StrValue:  f.StrValue,
			NumValue:  f.NumValue,
			BoolValue: f.BoolValue,
			Time:      f.Time,
			Lng:       f.Lng,
			Lat:       f.Lat,
		})
	}
	slices.SortFunc(p.Features, func(a, b ProfileFeature) int { return strings.Compare(a.Name, b.Name) })
	return p
}

func toProfiles(items []dynamoProfile) []Profile {
	profiles := make([]Profile, len(items))
	for i, item := range items {
		profiles[i] = item.toProfile()
	}
	return profiles
}
