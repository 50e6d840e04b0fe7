// Package storage persists profiles and segments and evaluates targeting trees against
// them in the backing store.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/tink3rlabs/targeting/grammar"
)

//go:embed config
var ConfigFs embed.FS
var ErrNotFound = errors.New("the requested resource was not found")

type StorageAdapter interface {
	Execute(statement string) error
	Ping(ctx context.Context) error
	GetType() StorageAdapterType
	GetProvider() StorageProviders
	GetSchemaName() string
	CreateSchema() error
	CreateMigrationTable() error
	UpdateMigrationTable(id int, name string, desc string) error
	GetLatestMigration() (int, error)

	CreateProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	// Target lists the profiles matching n, one page at a time.
	Target(ctx context.Context, n grammar.Node, page Page) ([]Profile, string, error)
	TargetCount(ctx context.Context, n grammar.Node) (int64, error)
	// Match reports whether the profile id matches n. It returns ErrNotFound when the
	// profile does not exist.
	Match(ctx context.Context, id string, n grammar.Node) (bool, error)
	// Search lists the profiles matching a free-text Lucene query.
	Search(ctx context.Context, query string, page Page) ([]Profile, string, error)

	CreateSegment(ctx context.Context, segment *Segment) error
	GetSegment(ctx context.Context, id string) (*Segment, error)
	ListSegments(ctx context.Context, page Page) ([]Segment, string, error)
}

type StorageAdapterType string
type StorageProviders string
type StorageAdapterFactory struct{}

const (
	MEMORY   StorageAdapterType = "memory"
	SQL      StorageAdapterType = "sql"
	DYNAMODB StorageAdapterType = "dynamodb"
)

const (
	POSTGRESQL StorageProviders = "postgresql"
	MYSQL      StorageProviders = "mysql"
	SQLITE     StorageProviders = "sqlite"
)

func (s StorageAdapterFactory) GetInstance(adapterType StorageAdapterType, config map[string]string) (StorageAdapter, error) {
	if config == nil {
		config = make(map[string]string)
	}
	var adapter StorageAdapter
	var err error
	switch adapterType {
	case MEMORY:
		adapter, err = GetMemoryAdapterInstance()
	case SQL:
		adapter, err = GetSQLAdapterInstance(config)
	case DYNAMODB:
		adapter, err = GetDynamoDBAdapterInstance(config)
	default:
		return nil, fmt.Errorf("storage adapter type %q isn't supported", adapterType)
	}
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
