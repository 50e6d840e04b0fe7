package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
	"github.com/tink3rlabs/targeting/storage/search/lucene"
	search "github.com/tink3rlabs/targeting/storage/search/targeting"
)

type queryBuilder func(*gorm.DB) *gorm.DB

type SQLAdapter struct {
	DB       *gorm.DB
	config   map[string]string
	provider StorageProviders
	driver   *search.SQLDriver
	searcher *lucene.Parser
}

var sqlAdapterLock = &sync.Mutex{}
var sqlAdapterInstance *SQLAdapter

func GetSQLAdapterInstance(config map[string]string) (*SQLAdapter, error) {
	sqlAdapterLock.Lock()
	defer sqlAdapterLock.Unlock()
	if sqlAdapterInstance == nil {
		adapter, err := NewSQLAdapter(config)
		if err != nil {
			return nil, err
		}
		sqlAdapterInstance = adapter
	}
	return sqlAdapterInstance, nil
}

// NewSQLAdapter opens a new connection. Most callers want the shared GetSQLAdapterInstance.
func NewSQLAdapter(config map[string]string) (*SQLAdapter, error) {
	cfg := make(map[string]string, len(config))
	for k, v := range config {
		cfg[k] = v
	}
	s := &SQLAdapter{config: cfg}
	if err := s.OpenConnection(); err != nil {
		return nil, err
	}

	searcher, err := lucene.NewParserFromType(Profile{})
	if err != nil {
		return nil, fmt.Errorf("failed to create search parser: %w", err)
	}
	s.searcher = searcher
	s.driver = search.NewSQLDriver(string(s.provider), s.GetSchemaName())
	return s, nil
}

func (s *SQLAdapter) OpenConnection() error {
	var err error
	s.provider = StorageProviders(s.config["provider"])
	delete(s.config, "provider")

	gormConf := gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true}
	if schemaName := s.config["schema"]; schemaName != "" && s.provider != SQLITE {
		gormConf.NamingStrategy = schema.NamingStrategy{TablePrefix: schemaName + "."}
	}

	switch s.provider {
	case POSTGRESQL:
		dsn := new(bytes.Buffer)
		for key, value := range s.config {
			if key != "schema" {
				fmt.Fprintf(dsn, "%s=%s ", key, value)
			}
		}
		s.DB, err = gorm.Open(postgres.New(postgres.Config{DSN: dsn.String(), PreferSimpleProtocol: true}), &gormConf)
	case MYSQL:
		dsn := new(bytes.Buffer)
		fmt.Fprintf(dsn, "%s:%s@tcp(%s:%s)/%s?parseTime=true", s.config["user"], s.config["password"], s.config["host"], s.config["port"], s.config["dbname"])
		s.DB, err = gorm.Open(mysql.New(mysql.Config{DSN: dsn.String()}), &gormConf)
	case SQLITE:
		path := "file::memory:?cache=shared"
		if s.config["path"] != "" {
			path = s.config["path"]
		}
		s.DB, err = gorm.Open(sqlite.Open(path), &gormConf)
	default:
		return fmt.Errorf("SQL provider %q is not supported, supported providers are: postgresql, mysql, and sqlite", s.provider)
	}

	if err != nil {
		return fmt.Errorf("failed to open a database connection: %w", err)
	}
	return nil
}

func (s *SQLAdapter) Execute(statement string) error {
	result := s.DB.Exec(statement)
	if result.Error != nil {
		return fmt.Errorf("failed to execute statement %s: %v", statement, result.Error)
	}
	return nil
}

func (s *SQLAdapter) Ping(ctx context.Context) error {
	db, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	return db.PingContext(ctx)
}

func (s *SQLAdapter) GetType() StorageAdapterType {
	return SQL
}

func (s *SQLAdapter) GetProvider() StorageProviders {
	return s.provider
}

func (s *SQLAdapter) GetSchemaName() string {
	if s.provider == SQLITE {
		return ""
	}
	return s.config["schema"]
}

// tablePrefix is prepended to table names in statements gorm does not build.
func (s *SQLAdapter) tablePrefix() string {
	if name := s.GetSchemaName(); name != "" {
		return name + "."
	}
	return ""
}

func (s *SQLAdapter) CreateSchema() error {
	name := s.GetSchemaName()
	if name == "" {
		return nil
	}
	switch s.provider {
	case POSTGRESQL:
		return s.Execute(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", name))
	case MYSQL:
		return s.Execute(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", name))
	default:
		return nil
	}
}

func (s *SQLAdapter) CreateMigrationTable() error {
	return s.Execute(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %smigrations (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		timestamp BIGINT NOT NULL)`, s.tablePrefix()))
}

func (s *SQLAdapter) UpdateMigrationTable(id int, name string, desc string) error {
	statement := fmt.Sprintf("INSERT INTO %smigrations (id, name, description, timestamp) VALUES (?, ?, ?, ?)", s.tablePrefix())
	result := s.DB.Exec(statement, id, name, desc, time.Now().UnixMilli())
	if result.Error != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, result.Error)
	}
	return nil
}

func (s *SQLAdapter) GetLatestMigration() (int, error) {
	var latest int
	statement := fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %smigrations", s.tablePrefix())
	if err := s.DB.Raw(statement).Scan(&latest).Error; err != nil {
		return 0, fmt.Errorf("failed to get latest migration: %w", err)
	}
	return latest, nil
}

func (s *SQLAdapter) CreateProfile(ctx context.Context, profile *Profile) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(profile).Error; err != nil {
			return err
		}
		if len(profile.Features) == 0 {
			return nil
		}
		for i := range profile.Features {
			profile.Features[i].ProfileID = profile.ID
		}
		return tx.Create(&profile.Features).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &serviceErrors.Conflict{Message: fmt.Sprintf("profile %s already exists", profile.ID)}
	}
	return err
}

func (s *SQLAdapter) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var profile Profile
	result := s.DB.WithContext(ctx).Preload("Features").Where("id = ?", id).Limit(1).Find(&profile)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &profile, nil
}

// condition renders n for gorm, which binds ? placeholders for every dialect.
func (s *SQLAdapter) condition(n grammar.Node) (string, []any, error) {
	return s.driver.Render(n)
}

func (s *SQLAdapter) Target(ctx context.Context, n grammar.Node, page Page) ([]Profile, string, error) {
	where, params, err := s.condition(n)
	if err != nil {
		return nil, "", err
	}
	return paginate(s.DB.WithContext(ctx).Model(&Profile{}).Preload("Features"), page, func(p Profile) string { return p.ID }, func(q *gorm.DB) *gorm.DB {
		return q.Where(where, params...)
	})
}

func (s *SQLAdapter) TargetCount(ctx context.Context, n grammar.Node) (int64, error) {
	where, params, err := s.condition(n)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := s.DB.WithContext(ctx).Model(&Profile{}).Where(where, params...).Count(&total).Error; err != nil {
		slog.Error("Error counting targeted profiles", slog.Any("error", err))
		return 0, err
	}
	return total, nil
}

func (s *SQLAdapter) Match(ctx context.Context, id string, n grammar.Node) (bool, error) {
	where, params, err := s.condition(n)
	if err != nil {
		return false, err
	}
	if _, err := s.GetProfile(ctx, id); err != nil {
		return false, err
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&Profile{}).Where("id = ?", id).Where(where, params...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLAdapter) Search(ctx context.Context, query string, page Page) ([]Profile, string, error) {
	where, params, err := s.searcher.ParseToSQLCondition(query, string(s.provider))
	if err != nil {
		return nil, "", &serviceErrors.BadRequest{Message: err.Error()}
	}
	return paginate(s.DB.WithContext(ctx).Model(&Profile{}).Preload("Features"), page, func(p Profile) string { return p.ID }, func(q *gorm.DB) *gorm.DB {
		if where == "" {
			return q
		}
		return q.Where(where, params...)
	})
}

func (s *SQLAdapter) CreateSegment(ctx context.Context, segment *Segment) error {
	err := s.DB.WithContext(ctx).Create(segment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &serviceErrors.Conflict{Message: fmt.Sprintf("segment %s already exists", segment.ID)}
	}
	return err
}

func (s *SQLAdapter) GetSegment(ctx context.Context, id string) (*Segment, error) {
	var segment Segment
	result := s.DB.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&segment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &segment, nil
}

func (s *SQLAdapter) ListSegments(ctx context.Context, page Page) ([]Segment, string, error) {
	return paginate(s.DB.WithContext(ctx).Model(&Segment{}), page, func(s Segment) string { return s.ID }, func(q *gorm.DB) *gorm.DB {
		return q
	})
}

// paginate runs a keyset paginated query ordered by id. It fetches one extra row to know
// whether another page exists; the cursor is the base64 encoded id of the last row.
func paginate[T any](q *gorm.DB, page Page, id func(T) string, builder queryBuilder) ([]T, string, error) {
	var cursorValue string
	if page.Cursor != "" {
		decoded, err := base64.StdEncoding.DecodeString(page.Cursor)
		if err != nil {
			return nil, "", &serviceErrors.BadRequest{Message: fmt.Sprintf("invalid cursor: %v", err)}
		}
		cursorValue = string(decoded)
	}

	limit := page.limit()
	q = q.Scopes(builder).Limit(limit + 1).Order("id ASC")
	if cursorValue != "" {
		q = q.Where("id > ?", cursorValue)
	}

	var items []T
	if result := q.Find(&items); result.Error != nil {
		slog.Error("Query execution failed", slog.Any("error", result.Error))
		return nil, "", result.Error
	}

	nextCursor := ""
	if len(items) > limit {
		items = items[:limit]
		nextCursor = base64.StdEncoding.EncodeToString([]byte(id(items[limit-1])))
	}
	return items, nextCursor, nil
}
