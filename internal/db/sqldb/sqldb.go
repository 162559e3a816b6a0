// Package sqldb implements the storage collaborator on top of database/sql.
// The same queries serve PostgreSQL and SQLite; Dialect covers the differences.
// Every query touching expenses or invoices carries the owner predicate.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

// DB is a SQL-backed storage for users, owned records and revoked sessions.
type DB struct {
	database          *sql.DB
	dialect           Dialect
	connectionTimeout time.Duration
}

var recordTables = map[models.RecordType]string{
	models.RecordTypeExpense: "expenses",
	models.RecordTypeInvoice: "invoices",
}

const recordColumns = `id, title, description, amount, currency_code, created_at, user_id`

// New wraps an open connection. Migrations are the caller's concern.
func New(database *sql.DB, dialect Dialect, connectionTimeout time.Duration) *DB {
	return &DB{
		database:          database,
		dialect:           dialect,
		connectionTimeout: connectionTimeout,
	}
}

// Conn exposes the underlying pool, e.g. for migrations.
func (db *DB) Conn() *sql.DB {
	return db.database
}

func tableFor(recordType models.RecordType) (string, error) {
	table, ok := recordTables[recordType]
	if !ok {
		return "", fmt.Errorf("%w: unknown record type %q", models.ErrMalformedInput, recordType)
	}
	return table, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, recordType models.RecordType) (*models.Record, error) {
	rec := &models.Record{Type: recordType}
	var description sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&description,
		&rec.Amount,
		&rec.CurrencyCode,
		&rec.CreatedAt,
		&rec.UserID,
	)
	if err != nil {
		return nil, err
	}
	rec.Description = description.String
	rec.CreatedAt = rec.CreatedAt.UTC()

	return rec, nil
}

// CreateUser inserts a new user and returns its ID.
// ErrEmailTaken is returned when the email is already registered.
func (db *DB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	_, err := db.database.ExecContext(
		ctx,
		db.dialect.rebind(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		usr.ID,
		usr.Email,
		usr.PasswordHash,
		usr.CreatedAt,
	)
	if err != nil {
		if db.dialect.isUniqueViolation(err) {
			return "", models.ErrEmailTaken
		}
		return "", fmt.Errorf("in internal/db/sqldb/sqldb.go/CreateUser(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return usr.ID, nil
}

func (db *DB) findUser(ctx context.Context, query string, arg string) (*user.User, bool, error) {
	row := db.database.QueryRowContext(ctx, db.dialect.rebind(query), arg)
	usr := &user.User{}
	err := row.Scan(&usr.ID, &usr.Email, &usr.PasswordHash, &usr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	usr.CreatedAt = usr.CreatedAt.UTC()

	return usr, true, nil
}

// FindUserByEmail looks a user up by normalized email.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	usr, found, err := db.findUser(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		email,
	)
	if err != nil {
		return nil, false, fmt.Errorf("in internal/db/sqldb/sqldb.go/FindUserByEmail(): error while `db.findUser()` calling: %w", err)
	}

	return usr, found, nil
}

// GetUserByID looks a user up by ID.
func (db *DB) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	usr, found, err := db.findUser(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`,
		userID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("in internal/db/sqldb/sqldb.go/GetUserByID(): error while `db.findUser()` calling: %w", err)
	}

	return usr, found, nil
}

// InsertRecord stores a new owned record.
func (db *DB) InsertRecord(ctx context.Context, rec *models.Record) error {
	table, err := tableFor(rec.Type)
	if err != nil {
		return err
	}

	_, err = db.database.ExecContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(
			`INSERT INTO %s (id, user_id, title, description, amount, currency_code, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			table,
		)),
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.Description,
		rec.Amount,
		rec.CurrencyCode,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/InsertRecord(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

// FindRecordByIDAndOwner returns the record only when both id and owner match.
func (db *DB) FindRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (*models.Record, bool, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, false, err
	}

	row := db.database.QueryRowContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(`SELECT `+recordColumns+` FROM %s WHERE id = ? AND user_id = ?`, table)),
		recordID,
		ownerID,
	)
	rec, err := scanRecord(row, recordType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("in internal/db/sqldb/sqldb.go/FindRecordByIDAndOwner(): error while `scanRecord()` calling: %w", err)
	}

	return rec, true, nil
}

// UpdateRecordByIDAndOwner applies patch in one conditional statement.
// found is false when no row matched the (id, owner) pair.
func (db *DB) UpdateRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
	patch models.RecordPatch,
) (*models.Record, bool, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, false, err
	}

	row := db.database.QueryRowContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(
			`UPDATE %s SET title = ?, description = ?, amount = ?, currency_code = ? WHERE id = ? AND user_id = ? RETURNING `+recordColumns,
			table,
		)),
		patch.Title,
		patch.Description,
		patch.Amount,
		patch.CurrencyCode,
		recordID,
		ownerID,
	)
	rec, err := scanRecord(row, recordType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("in internal/db/sqldb/sqldb.go/UpdateRecordByIDAndOwner(): error while `scanRecord()` calling: %w", err)
	}

	return rec, true, nil
}

// DeleteRecordByIDAndOwner removes the record if it belongs to ownerID.
func (db *DB) DeleteRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (bool, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return false, err
	}

	result, err := db.database.ExecContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, table)),
		recordID,
		ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("in internal/db/sqldb/sqldb.go/DeleteRecordByIDAndOwner(): error while `db.database.ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("in internal/db/sqldb/sqldb.go/DeleteRecordByIDAndOwner(): error while `result.RowsAffected()` calling: %w", err)
	}

	return affected > 0, nil
}

// DeleteRecordsByIDsAndOwner removes every listed record owned by ownerID
// and returns how many were removed. IDs of other owners are skipped.
func (db *DB) DeleteRecordsByIDsAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordIDs []string,
	ownerID string,
) (int64, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return 0, err
	}

	recordIDs = funk.UniqString(recordIDs)
	if len(recordIDs) == 0 {
		return 0, nil
	}

	inClause, inArgs := db.dialect.inClause("id", recordIDs)
	args := append([]any{ownerID}, inArgs...)

	result, err := db.database.ExecContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND %s`, table, inClause)),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("in internal/db/sqldb/sqldb.go/DeleteRecordsByIDsAndOwner(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return result.RowsAffected()
}

// escapeLike makes a user-supplied string safe inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListRecordsByOwner returns ownerID's records, newest first.
func (db *DB) ListRecordsByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
	filter models.RecordFilter,
) ([]models.Record, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, err
	}

	rows, err := db.database.QueryContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(
			`SELECT `+recordColumns+` FROM %s WHERE user_id = ? AND %s(title) LIKE ? ESCAPE '\' ORDER BY created_at DESC, id DESC`,
			table,
			db.dialect.lowerFunc,
		)),
		ownerID,
		"%"+escapeLike(strings.ToLower(filter.TitleContains))+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/sqldb/sqldb.go/ListRecordsByOwner(): error while `db.database.QueryContext()` calling: %w", err)
	}
	defer rows.Close()

	result := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, recordType)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// FindLatestRecordByOwner returns ownerID's newest record of the given type.
func (db *DB) FindLatestRecordByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
) (*models.Record, bool, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return nil, false, err
	}

	row := db.database.QueryRowContext(
		ctx,
		db.dialect.rebind(fmt.Sprintf(
			`SELECT `+recordColumns+` FROM %s WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
			table,
		)),
		ownerID,
	)
	rec, err := scanRecord(row, recordType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("in internal/db/sqldb/sqldb.go/FindLatestRecordByOwner(): error while `scanRecord()` calling: %w", err)
	}

	return rec, true, nil
}

// RevokeSession remembers a token ID until the token would have expired anyway.
func (db *DB) RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := db.database.ExecContext(
		ctx,
		db.dialect.rebind(`INSERT INTO revoked_sessions (token_id, expires_at) VALUES (?, ?) ON CONFLICT (token_id) DO NOTHING`),
		tokenID,
		expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("in internal/db/sqldb/sqldb.go/RevokeSession(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return nil
}

// IsSessionRevoked reports whether tokenID was revoked.
func (db *DB) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int
	err := db.database.QueryRowContext(
		ctx,
		db.dialect.rebind(`SELECT COUNT(*) FROM revoked_sessions WHERE token_id = ?`),
		tokenID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("in internal/db/sqldb/sqldb.go/IsSessionRevoked(): error while `row.Scan()` calling: %w", err)
	}

	return count > 0, nil
}

// PurgeExpiredRevocations drops revocations whose tokens have expired by now.
func (db *DB) PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.database.ExecContext(
		ctx,
		db.dialect.rebind(`DELETE FROM revoked_sessions WHERE expires_at <= ?`),
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("in internal/db/sqldb/sqldb.go/PurgeExpiredRevocations(): error while `db.database.ExecContext()` calling: %w", err)
	}

	return result.RowsAffected()
}

// GetNumberOfUsers counts registered users.
func (db *DB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("in internal/db/sqldb/sqldb.go/GetNumberOfUsers(): error while `row.Scan()` calling: %w", err)
	}

	return count, nil
}

// GetNumberOfRecords counts expenses and invoices of all users together.
func (db *DB) GetNumberOfRecords(ctx context.Context) (int64, error) {
	var count int64
	err := db.database.QueryRowContext(
		ctx,
		//ownerscope:allow aggregate over all owners for internal stats
		`SELECT (SELECT COUNT(*) FROM expenses) + (SELECT COUNT(*) FROM invoices)`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("in internal/db/sqldb/sqldb.go/GetNumberOfRecords(): error while `row.Scan()` calling: %w", err)
	}

	return count, nil
}

// Ping verifies connectivity within the configured timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.database.Close()
}
