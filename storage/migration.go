package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type MigrationFile struct {
	Description string
	Migrations  []Migration
}

type Migration struct {
	Migrate  string
	Rollback string
}

type DatabaseMigration struct {
	storageType     StorageAdapterType
	storageProvider StorageProviders
	storage         StorageAdapter
}

func NewDatabaseMigration(storageAdapter StorageAdapter) *DatabaseMigration {
	m := DatabaseMigration{
		storage:         storageAdapter,
		storageType:     storageAdapter.GetType(),
		storageProvider: storageAdapter.GetProvider(),
	}
	return &m
}

// expand replaces ${prefix} in a migration statement with the schema qualifier of the adapter.
func (m *DatabaseMigration) expand(statement string) string {
	prefix := ""
	if name := m.storage.GetSchemaName(); name != "" {
		prefix = name + "."
	}
	return os.Expand(statement, func(key string) string {
		if key == "prefix" {
			return prefix
		}
		return "${" + key + "}"
	})
}

func (m *DatabaseMigration) getMigrationFiles() (map[string]MigrationFile, error) {
	migrations := map[string]MigrationFile{}
	dir := fmt.Sprintf("config/migrations/%s", m.storageProvider)
	files, err := ConfigFs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations found for provider %s: %v", m.storageProvider, err)
	}

	for _, f := range files {
		contents, err := ConfigFs.ReadFile(path.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %v", f.Name(), err)
		}
		mf := MigrationFile{}
		if err := yaml.Unmarshal(contents, &mf); err != nil {
			return nil, fmt.Errorf("failed to parse migration file %s: %v", f.Name(), err)
		}
		migrations[f.Name()] = mf
	}
	return migrations, nil
}

func (m *DatabaseMigration) rollbackMigration(migration MigrationFile, applied int) error {
	statements := slices.Clone(migration.Migrations[:applied])
	slices.Reverse(statements)
	for _, s := range statements {
		if err := m.storage.Execute(m.expand(s.Rollback)); err != nil {
			return err
		}
	}
	return nil
}

func (m *DatabaseMigration) runMigrations(migrations map[string]MigrationFile) error {
	slog.Info("Getting last migration applied")
	latestMigrationId, err := m.storage.GetLatestMigration()
	if err != nil {
		return fmt.Errorf("failed to get latest migration: %w", err)
	}

	//iterating over a map is randomized so we need to make sure we use the correct order of migrations
	keys := make([]string, 0, len(migrations))
	for k := range migrations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return migrationID(keys[i]) < migrationID(keys[j]) })

	for _, k := range keys {
		migrationId, err := strconv.Atoi(strings.Split(k, "__")[0])
		if err != nil {
			return fmt.Errorf("failed to determine migration id of %s: %w", k, err)
		}
		if migrationId <= latestMigrationId {
			continue
		}

		mf := migrations[k]
		for i, stmt := range mf.Migrations {
			if err := m.storage.Execute(m.expand(stmt.Migrate)); err != nil {
				slog.Error("failed to execute migration statement", slog.String("key", k), slog.Any("error", err))
				if rbErr := m.rollbackMigration(mf, i); rbErr != nil {
					return fmt.Errorf("failed to rollback migration %s: %w", k, rbErr)
				}
				slog.Info("rollback successful", slog.String("key", k))
				return fmt.Errorf("migration %s failed: %w", k, err)
			}
		}
		slog.Info("updating migration table for", slog.String("key", k))
		if err := m.storage.UpdateMigrationTable(migrationId, k, mf.Description); err != nil {
			return fmt.Errorf("failed to update migration table: %w", err)
		}
	}
	return nil
}

// Migrate applies every migration newer than the latest one recorded. A failed migration is
// rolled back and ends the run.
func (m *DatabaseMigration) Migrate() error {
	if m.storageType == DYNAMODB {
		slog.Info(fmt.Sprintf(`using %s storage adapter, migrations are not supported`, m.storageType))
		return nil
	}

	slog.Info(fmt.Sprintf(`using %s storage adapter, executing migrations`, m.storageType))
	migrations, err := m.getMigrationFiles()
	if err != nil {
		return fmt.Errorf("failed to get migration files: %w", err)
	}
	slog.Info("creating schema")
	if err := m.storage.CreateSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	slog.Info("creating migration table")
	if err := m.storage.CreateMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	if err := m.runMigrations(migrations); err != nil {
		return err
	}
	slog.Info("finished running migrations")
	return nil
}

// migrationID is the numeric prefix of a migration file name, or -1 when it has none.
func migrationID(name string) int {
	id, err := strconv.Atoi(strings.Split(name, "__")[0])
	if err != nil {
		return -1
	}
	return id
}
