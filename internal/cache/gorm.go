/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// entryRecord is the row layout of the durable cache table. Rows are keyed by the digest
// of the key because postgres caps btree index rows at about 2.7KB and prompts are larger.
type entryRecord struct {
	Hash      string `gorm:"primaryKey;size:64"`
	Prompt    string `gorm:"type:text;not null"`
	Signature string `gorm:"type:text;not null"`
	Result    string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (entryRecord) TableName() string {
	return "llm_cache_entries"
}

// SQLCache stores entries in a relational database through gorm.
type SQLCache struct {
	db *gorm.DB
}

// OpenSQLite opens (and creates when missing) a sqlite database file.
func OpenSQLite(path string) (*SQLCache, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite cache requires a path", ErrUnavailable)
	}
	dsn := path + "?" + sqlitePragmas
	return openSQL(sqlite.Open(dsn), 1)
}

// OpenPostgres connects to a postgres database.
func OpenPostgres(dsn string) (*SQLCache, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres cache requires a dsn", ErrUnavailable)
	}
	return openSQL(postgres.Open(dsn), 0)
}

func openSQL(dialector gorm.Dialector, maxOpenConns int) (*SQLCache, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %w", ErrUnavailable, err)
	}
	return &SQLCache{db: db}, nil
}

func (c *SQLCache) Lookup(ctx context.Context, key Key) (*chat.Result, bool, error) {
	var rec entryRecord
	err := c.db.WithContext(ctx).
		Where("hash = ?", key.Hash()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if rec.Prompt != key.Prompt || rec.Signature != key.Signature {
		return nil, false, nil
	}
	var result chat.Result
	if err := json.Unmarshal([]byte(rec.Result), &result); err != nil {
		return nil, false, fmt.Errorf("cache entry decode: %w", err)
	}
	return &result, true, nil
}

func (c *SQLCache) Update(ctx context.Context, key Key, result *chat.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache entry encode: %w", err)
	}
	rec := entryRecord{Hash: key.Hash(), Prompt: key.Prompt, Signature: key.Signature, Result: string(data)}
	err = c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("cache update: %w", err)
	}
	return nil
}

func (c *SQLCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
