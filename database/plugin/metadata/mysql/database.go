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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin/metadata/internal/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DefaultMaxConnections  = 100
	DefaultConnMaxLifetime = time.Hour

	// errUnknownDatabase is the MySQL server error number for a missing schema
	errUnknownDatabase = 1049
)

// MetadataStoreMysql stores metadata in MySQL.
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry    prometheus.Registerer
	db              *gorm.DB
	logger          *slog.Logger
	host            string
	user            string
	password        string
	database        string
	sslMode         string
	timeZone        string
	dsn             string // Data source name (MySQL connection string)
	port            uint
	maxConnections  int
	connMaxLifetime time.Duration
}

// New creates a new database
func New(
	host string,
	port uint,
	user string,
	password string,
	database string,
	sslMode string,
	timeZone string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStoreMysql, error) {
	return NewWithOptions(
		WithHost(host),
		WithPort(port),
		WithUser(user),
		WithPassword(password),
		WithDatabase(database),
		WithSSLMode(sslMode),
		WithTimeZone(timeZone),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	// Set defaults after options are applied (no side effects)
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 3306
	}
	if db.user == "" {
		db.user = "root"
	}
	if db.database == "" {
		db.database = "endorse"
	}
	if db.timeZone == "" {
		db.timeZone = "UTC"
	}
	if db.maxConnections <= 0 {
		db.maxConnections = DefaultMaxConnections
	}
	if db.connMaxLifetime <= 0 {
		db.connMaxLifetime = DefaultConnMaxLifetime
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Note: Database initialization happens in Start()
	return db, nil
}

// buildConfig returns the driver config for the store. A configured DSN
// takes precedence over the individual connection options. Row counts for
// updates always report matched rows, which compare-and-swap updates rely on.
func (d *MetadataStoreMysql) buildConfig() (*mysql.Config, error) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.ClientFoundRows = true
		return cfg, nil
	}
	cfg := mysql.NewConfig()
	cfg.User = d.user
	cfg.Passwd = d.password
	cfg.Net = "tcp"
	cfg.Addr = d.host + ":" + strconv.FormatUint(uint64(d.port), 10)
	cfg.DBName = d.database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	cfg.ClientFoundRows = true
	if d.timeZone != "" {
		loc, err := time.LoadLocation(d.timeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if d.sslMode != "" {
		cfg.TLSConfig = d.sslMode
	}
	return cfg, nil
}

func openMysql(dsn string) (*gorm.DB, error) {
	return gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	cfg, err := d.buildConfig()
	if err != nil {
		return err
	}
	metadataDb, err := openMysql(cfg.FormatDSN())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != errUnknownDatabase {
			return err
		}
		if createErr := d.ensureDatabaseExists(cfg); createErr != nil {
			return errors.Join(err, createErr)
		}
		metadataDb, err = openMysql(cfg.FormatDSN())
		if err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"component", "database",
		"addr", cfg.Addr,
		"database", cfg.DBName,
	)
	d.db = metadataDb
	// Configure connection pool
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(min(10, d.maxConnections))
	sqlDB.SetMaxOpenConns(d.maxConnections)
	sqlDB.SetConnMaxLifetime(d.connMaxLifetime)

	d.Store = gormstore.New(
		metadataDb,
		gormstore.WithLogger(d.logger),
		gormstore.WithRowLocks(true),
	)
	// MetadataStoreMysql is available for recovery, so return error but keep instance
	return gormstore.Setup(metadataDb, "metadata_mysql", d.logger, d.promRegistry)
}

// ensureDatabaseExists connects without a schema and creates the configured one
func (d *MetadataStoreMysql) ensureDatabaseExists(cfg *mysql.Config) error {
	if cfg.DBName == "" {
		return errors.New("no database name configured")
	}
	if strings.Contains(cfg.DBName, "`") {
		return fmt.Errorf("invalid database name: %q", cfg.DBName)
	}
	adminCfg := cfg.Clone()
	adminCfg.DBName = ""
	adminDb, err := openMysql(adminCfg.FormatDSN())
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	d.logger.Info(
		"creating mysql database",
		"component", "database",
		"database", cfg.DBName,
	)
	if result := adminDb.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.DBName)); result.Error != nil {
		return result.Error
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close gets the database handle from our MetadataStore and closes it
func (d *MetadataStoreMysql) Close() error {
	// Guard against nil DB handle (e.g., if Start() failed or was never called)
	if d.db == nil {
		return nil
	}
	db, err := d.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
