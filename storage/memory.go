package storage

import (
	"fmt"
	"sync"
)

var memoryAdapterLock = &sync.Mutex{}

// MemoryAdapter is an SQLAdapter over an in-memory SQLite database. Nothing is written to disk.
type MemoryAdapter struct {
	*SQLAdapter
}

var memoryAdapterInstance *MemoryAdapter

func GetMemoryAdapterInstance() (*MemoryAdapter, error) {
	memoryAdapterLock.Lock()
	defer memoryAdapterLock.Unlock()
	if memoryAdapterInstance == nil {
		adapter, err := NewMemoryAdapter("targeting")
		if err != nil {
			return nil, err
		}
		memoryAdapterInstance = adapter
	}
	return memoryAdapterInstance, nil
}

// NewMemoryAdapter opens the in-memory database called name. Adapters opened with the same
// name share their data.
func NewMemoryAdapter(name string) (*MemoryAdapter, error) {
	db, err := NewSQLAdapter(map[string]string{
		"provider": string(SQLITE),
		"path":     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	if err != nil {
		return nil, err
	}

	// a shared cache database lives as long as one connection to it stays open
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return &MemoryAdapter{SQLAdapter: db}, nil
}

func (m *MemoryAdapter) GetType() StorageAdapterType {
	return MEMORY
}
