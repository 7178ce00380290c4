package storage

import (
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/lib/pq"

	_ "modernc.org/sqlite"
)

// Dialect isolates the differences between the supported SQL engines.
type Dialect interface {
	// DriverName returns the driver name for sql.Open
	DriverName() string
	// RewriteQuery converts ? placeholders when the engine needs another syntax.
	RewriteQuery(query string) string
	SupportsLastInsertID() bool
	ConfigureConnection(db *sql.DB) error
	// MigrationsDir is the directory under migrations/ holding this engine's files.
	MigrationsDir() string
	MigrationDriver(db *sql.DB) (database.Driver, error)
	IsUniqueViolation(err error) bool
}

var placeholderRe = regexp.MustCompile(`\?`)

func rewritePlaceholdersToNumbered(query string) string {
	n := 0
	return placeholderRe.ReplaceAllStringFunc(query, func(string) string {
		n++
		return "$" + strconv.Itoa(n)
	})
}

// DialectFor maps a backend name to its dialect.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "sqlite":
		return SQLiteDialect{}, nil
	case "postgres":
		return PostgresDialect{}, nil
	}
	return nil, errors.New("unsupported sql dialect: " + name)
}

type SQLiteDialect struct{}

func (SQLiteDialect) DriverName() string { return "sqlite" }

func (SQLiteDialect) RewriteQuery(query string) string { return query }

func (SQLiteDialect) SupportsLastInsertID() bool { return true }

func (SQLiteDialect) ConfigureConnection(db *sql.DB) error {
	// A single writer avoids SQLITE_BUSY on concurrent transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return err
	}
	_, err := db.Exec("PRAGMA busy_timeout=5000;")
	return err
}

func (SQLiteDialect) MigrationsDir() string { return "sqlite" }

func (SQLiteDialect) MigrationDriver(db *sql.DB) (database.Driver, error) {
	return sqlite.WithInstance(db, &sqlite.Config{})
}

func (SQLiteDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type PostgresDialect struct{}

func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) RewriteQuery(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

func (PostgresDialect) SupportsLastInsertID() bool { return false }

func (PostgresDialect) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return nil
}

func (PostgresDialect) MigrationsDir() string { return "postgres" }

func (PostgresDialect) MigrationDriver(db *sql.DB) (database.Driver, error) {
	return postgres.WithInstance(db, &postgres.Config{})
}

func (PostgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
