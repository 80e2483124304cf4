// Package dbh opens SQLite databases with gorm, after bringing their schema up to date.
package dbh

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/logs"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DBConnectFlags are flags passed to OpenDB.
type DBConnectFlags int

const DriverSqlite = "sqlite3"

const (
	// DBConnectFlagWipeDB causes the entire DB to erased, and re-initialized from scratch (useful for unit tests).
	DBConnectFlagWipeDB DBConnectFlags = 1 << iota
)

// DBConfig is the database config that we expect to find in our JSON config file.
type DBConfig struct {
	Driver   string `json:"driver"`
	Database string `json:"database"` // Filename of the SQLite database
}

func MakeSqliteConfig(filename string) DBConfig {
	return DBConfig{
		Driver:   DriverSqlite,
		Database: filename,
	}
}

// LogSafeDescription returns a string that is useful for debugging connection issues
func (db *DBConfig) LogSafeDescription() string {
	return fmt.Sprintf("driver=%s database=%v", db.Driver, db.Database)
}

// DSN returns the database connection string
func (db *DBConfig) DSN() string {
	return db.Database
}

// MakeMigrations turns a sequence of SQL expression into burntsushi migrations.
func MakeMigrations(log logs.Log, sql []string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0
	for _, str := range sql {
		migs = append(migs, MakeMigrationFromSQL(log, &idx, str))
	}
	return migs
}

// MakeMigrationFromSQL turns an SQL string into a burntsushi migration
func MakeMigrationFromSQL(log logs.Log, migrationNumber *int, sql string) migration.Migrator {
	idx := *migrationNumber + 1
	*migrationNumber++

	return func(tx migration.LimitedTx) error {
		summary := strings.TrimSpace(sql)
		l := min(len(summary), 40)
		firstNewline := strings.IndexAny(summary, "\n\r")
		if firstNewline != -1 && firstNewline < l {
			l = firstNewline
		}
		log.Infof("Running migration %v: '%v...'", idx, summary[:l])
		_, err := tx.Exec(sql)
		return err
	}
}

// OpenDB creates a new DB, or opens an existing one, and runs all the migrations before returning.
func OpenDB(log logs.Log, dbc DBConfig, migrations []migration.Migrator, flags DBConnectFlags) (*gorm.DB, error) {
	if dbc.Driver == "" {
		dbc.Driver = DriverSqlite
	}
	if dbc.Driver != DriverSqlite {
		return nil, fmt.Errorf("unsupported database driver '%v'", dbc.Driver)
	}
	if flags&DBConnectFlagWipeDB != 0 {
		if err := DropAllTables(log, dbc); err != nil {
			return nil, err
		}
	}
	if dir := filepath.Dir(dbc.Database); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := migration.Open(dbc.Driver, dbc.DSN(), migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database %v: %w", dbc.LogSafeDescription(), err)
	}
	db.Close()
	return gormOpen(log, dbc.DSN())
}

// DropAllTables deletes the database.
// If the database does not exist, returns nil.
// This function is intended to be used by unit tests.
func DropAllTables(log logs.Log, dbc DBConfig) error {
	err := os.Remove(dbc.Database)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		log.Warnf("Erased DB '%v'", dbc.Database)
	}
	return err
}

// gormLogWriter sends gorm's log messages to our own log
type gormLogWriter struct {
	log logs.Log
}

func (w gormLogWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

func gormOpen(log logs.Log, dsn string) (*gorm.DB, error) {
	newLogger := logger.New(
		gormLogWriter{log},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // This is the primary reason we use a custom logger. Record not found is just never a loggable thing.
			Colorful:                  false,
		},
	)

	config := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			// Disable pluralization of tables.
			// This is just another thing to worry about when writing our own migrations, so rather disable it.
			SingularTable: true,
		},
		Logger: newLogger,
	}
	return gorm.Open(sqlite.Open(dsn), config)
}
