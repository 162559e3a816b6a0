// Package sqlitedb stores everything in a single SQLite file using the pure-Go
// modernc.org/sqlite driver. Queries are shared with PostgreSQL through sqldb.
package sqlitedb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/patric-chuzhbe/beerich/internal/db/sqldb"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	err := sqlite.RegisterDeterministicScalarFunction(sqldb.SQLiteLowerFunc, 1, unicodeLower)
	if err != nil {
		panic(err)
	}
}

// unicodeLower lower-cases its argument the way strings.ToLower does.
func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch value := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(value), nil
	case []byte:
		return strings.ToLower(string(value)), nil
	default:
		return value, nil
	}
}

// SQLiteDB is a file-backed storage.
type SQLiteDB struct {
	*sqldb.DB
}

// New opens (creating if needed) the database file and migrates it.
func New(ctx context.Context, fileName string, connectionTimeout time.Duration) (*SQLiteDB, error) {
	dsn := "file:" + fileName + "?" + url.Values{
		"_pragma": []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/New(): error while `sql.Open()` calling: %w", err)
	}
	// SQLite allows one writer at a time.
	database.SetMaxOpenConns(1)

	result := &SQLiteDB{
		DB: sqldb.New(database, sqldb.SQLite, connectionTimeout),
	}

	if err := migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}

	return result, nil
}

func migrate(ctx context.Context, database *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(sqldb.SQLite.Name); err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, database, "migrations"); err != nil {
		return fmt.Errorf("in internal/db/sqlitedb/sqlitedb.go/migrate(): error while `goose.UpContext()` calling: %w", err)
	}

	return nil
}
