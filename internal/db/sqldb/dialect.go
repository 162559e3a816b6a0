package sqldb

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Dialect captures the few places where PostgreSQL and SQLite disagree.
type Dialect struct {
	// Name is the goose dialect name.
	Name string

	// numberedPlaceholders turns `?` into `$1, $2, ...`.
	numberedPlaceholders bool

	// inClause renders `column IN (...)` for a list argument.
	inClause func(column string, values []string) (string, []any)

	isUniqueViolation func(err error) bool

	// lowerFunc is the SQL function that lower-cases text with full Unicode folding.
	lowerFunc string
}

// SQLiteLowerFunc is the name sqlitedb registers its Unicode-aware lower function under.
const SQLiteLowerFunc = "unicode_lower"

const pgUniqueViolation = "23505"

// Postgres is the dialect used with the pgx stdlib driver.
var Postgres = Dialect{
	Name:                 "postgres",
	numberedPlaceholders: true,
	inClause: func(column string, values []string) (string, []any) {
		return column + " = ANY(?)", []any{pq.Array(values)}
	},
	isUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
	lowerFunc: "LOWER",
}

// SQLite is the dialect used with modernc.org/sqlite.
var SQLite = Dialect{
	Name: "sqlite3",
	inClause: func(column string, values []string) (string, []any) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = v
		}
		return column + " IN (" + placeholders + ")", args
	},
	isUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	// The built-in LOWER only folds ASCII.
	lowerFunc: SQLiteLowerFunc,
}

// rebind rewrites `?` placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.numberedPlaceholders {
		return query
	}

	var builder strings.Builder
	builder.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(n))
			continue
		}
		builder.WriteRune(r)
	}

	return builder.String()
}
