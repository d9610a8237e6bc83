// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gormstore holds the document, ledger and audit queries shared by
// the gorm based metadata plugins.
package gormstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store implements the metadata queries against an open gorm handle
type Store struct {
	db       *gorm.DB
	logger   *slog.Logger
	rowLocks bool
}

type StoreOptionFunc func(*Store)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreOptionFunc {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRowLocks enables SELECT ... FOR UPDATE when a caller reads a
// document for modification. Dialects without row locks leave it off.
func WithRowLocks(rowLocks bool) StoreOptionFunc {
	return func(s *Store) {
		s.rowLocks = rowLocks
	}
}

// New wraps an open gorm handle
func New(db *gorm.DB, opts ...StoreOptionFunc) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Setup configures tracing and connection pool metrics for a freshly opened
// handle, then creates the table schemas
func Setup(
	db *gorm.DB,
	name string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) error {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if promRegistry != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := registerDBStats(promRegistry, sqlDB, name); err != nil {
			return err
		}
	}
	for _, model := range models.MigrateModels {
		logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := db.AutoMigrate(model); err != nil {
			return err
		}
	}
	return nil
}

func registerDBStats(
	promRegistry prometheus.Registerer,
	sqlDB *sql.DB,
	name string,
) error {
	err := promRegistry.Register(collectors.NewDBStatsCollector(sqlDB, name))
	if err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// DB returns the underlying GORM database handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction creates a gorm transaction
func (s *Store) Transaction() types.Txn {
	txn, _ := s.BeginTxn()
	return txn
}

// BeginTxn starts a transaction and returns the handle with an error.
// Callers that prefer explicit error handling can use this instead of Transaction().
func (s *Store) BeginTxn() (types.Txn, error) {
	db := s.db.Begin()
	if db.Error != nil {
		s.logger.Error(
			"failed to begin transaction",
			"component", "database",
			"error", db.Error,
		)
		return newFailedTxn(db.Error), db.Error
	}
	return newTxn(db), nil
}

func (s *Store) resolve(txn types.Txn) (*gorm.DB, error) {
	return resolveDB(s.db, txn)
}

// inTxn runs fn within txn, or within a new transaction when txn is nil
func (s *Store) inTxn(txn types.Txn, fn func(*gorm.DB) error) error {
	if txn != nil {
		db, err := s.resolve(txn)
		if err != nil {
			return err
		}
		return fn(db)
	}
	return s.db.Transaction(fn)
}
