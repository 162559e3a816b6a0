// Package storagetest holds the behaviour every storage backend must share.
// Backends call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

// Storage is the full storage collaborator contract.
type Storage interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)
	GetUserByID(ctx context.Context, userID string) (*user.User, bool, error)
	InsertRecord(ctx context.Context, rec *models.Record) error
	FindRecordByIDAndOwner(ctx context.Context, recordType models.RecordType, recordID, ownerID string) (*models.Record, bool, error)
	UpdateRecordByIDAndOwner(ctx context.Context, recordType models.RecordType, recordID, ownerID string, patch models.RecordPatch) (*models.Record, bool, error)
	DeleteRecordByIDAndOwner(ctx context.Context, recordType models.RecordType, recordID, ownerID string) (bool, error)
	DeleteRecordsByIDsAndOwner(ctx context.Context, recordType models.RecordType, recordIDs []string, ownerID string) (int64, error)
	ListRecordsByOwner(ctx context.Context, recordType models.RecordType, ownerID string, filter models.RecordFilter) ([]models.Record, error)
	FindLatestRecordByOwner(ctx context.Context, recordType models.RecordType, ownerID string) (*models.Record, bool, error)
	RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
	GetNumberOfRecords(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func mustCreateUser(t *testing.T, db Storage, email string) *user.User {
	t.Helper()
	usr := &user.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: []byte("$2a$10$hash-of-" + email),
		CreatedAt:    baseTime,
	}
	_, err := db.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func mustInsertRecord(t *testing.T, db Storage, recordType models.RecordType, ownerID, title string, createdAt time.Time) models.Record {
	t.Helper()
	rec := models.Record{
		ID:           uuid.New().String(),
		Type:         recordType,
		Title:        title,
		Description:  "about " + title,
		Amount:       4250,
		CurrencyCode: models.DefaultCurrencyCode,
		CreatedAt:    createdAt,
		UserID:       ownerID,
	}
	require.NoError(t, db.InsertRecord(context.Background(), &rec))
	return rec
}

// Run exercises a freshly created, empty storage returned by newStorage.
func Run(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Run("users", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		alice := mustCreateUser(t, db, "alice@example.com")

		found, ok, err := db.FindUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, alice.ID, found.ID)
		assert.Equal(t, alice.PasswordHash, found.PasswordHash)

		byID, ok, err := db.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alice@example.com", byID.Email)

		_, ok, err = db.FindUserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = db.GetUserByID(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = db.CreateUser(ctx, &user.User{
			ID:           uuid.New().String(),
			Email:        "alice@example.com",
			PasswordHash: []byte("other"),
			CreatedAt:    baseTime,
		})
		assert.ErrorIs(t, err, models.ErrEmailTaken)

		count, err := db.GetNumberOfUsers(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("composite key isolates owners", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		alice := mustCreateUser(t, db, "alice@example.com")
		bob := mustCreateUser(t, db, "bob@example.com")
		dinner := mustInsertRecord(t, db, models.RecordTypeExpense, alice.ID, "Dinner", baseTime)

		got, ok, err := db.FindRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, dinner.Title, got.Title)
		assert.Equal(t, dinner.Amount, got.Amount)
		assert.Equal(t, alice.ID, got.UserID)
		assert.True(t, dinner.CreatedAt.Equal(got.CreatedAt))

		_, ok, err = db.FindRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok, "another owner must not see the record")

		_, ok, err = db.FindRecordByIDAndOwner(ctx, models.RecordTypeInvoice, dinner.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, ok, "record types are separate tables")

		patch := models.RecordPatch{Title: "Hacked", Amount: 1, CurrencyCode: "EUR"}
		_, ok, err = db.UpdateRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, bob.ID, patch)
		require.NoError(t, err)
		assert.False(t, ok)

		deleted, err := db.DeleteRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		got, ok, err = db.FindRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Dinner", got.Title, "a foreign update must not change the record")

		patch = models.RecordPatch{Title: "Dinner for two", Description: "", Amount: 8500, CurrencyCode: "EUR"}
		updated, ok, err := db.UpdateRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID, patch)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Dinner for two", updated.Title)
		assert.Equal(t, "", updated.Description)
		assert.EqualValues(t, 8500, updated.Amount)
		assert.Equal(t, "EUR", updated.CurrencyCode)
		assert.Equal(t, alice.ID, updated.UserID)

		deleted, err = db.DeleteRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, ok, err = db.FindRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		deleted, err = db.DeleteRecordByIDAndOwner(ctx, models.RecordTypeExpense, dinner.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, deleted, "deletion is permanent")
	})

	t.Run("list, search and latest", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		alice := mustCreateUser(t, db, "alice@example.com")
		bob := mustCreateUser(t, db, "bob@example.com")

		older := mustInsertRecord(t, db, models.RecordTypeExpense, alice.ID, "Groceries", baseTime)
		newer := mustInsertRecord(t, db, models.RecordTypeExpense, alice.ID, "Dinner at 100% Cafe", baseTime.Add(time.Hour))
		mustInsertRecord(t, db, models.RecordTypeExpense, bob.ID, "Bob's dinner", baseTime.Add(2*time.Hour))
		salary := mustInsertRecord(t, db, models.RecordTypeInvoice, alice.ID, "Salary", baseTime)

		all, err := db.ListRecordsByOwner(ctx, models.RecordTypeExpense, alice.ID, models.RecordFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, newer.ID, all[0].ID, "newest first")
		assert.Equal(t, older.ID, all[1].ID)

		searched, err := db.ListRecordsByOwner(ctx, models.RecordTypeExpense, alice.ID, models.RecordFilter{TitleContains: "DINNER"})
		require.NoError(t, err)
		require.Len(t, searched, 1)
		assert.Equal(t, newer.ID, searched[0].ID)

		percent, err := db.ListRecordsByOwner(ctx, models.RecordTypeExpense, alice.ID, models.RecordFilter{TitleContains: "%"})
		require.NoError(t, err)
		require.Len(t, percent, 1, "pattern characters are matched literally")

		none, err := db.ListRecordsByOwner(ctx, models.RecordTypeExpense, alice.ID, models.RecordFilter{TitleContains: "rent"})
		require.NoError(t, err)
		assert.Empty(t, none)

		latest, ok, err := db.FindLatestRecordByOwner(ctx, models.RecordTypeExpense, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, newer.ID, latest.ID)

		latestInvoice, ok, err := db.FindLatestRecordByOwner(ctx, models.RecordTypeInvoice, alice.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, salary.ID, latestInvoice.ID)

		_, ok, err = db.FindLatestRecordByOwner(ctx, models.RecordTypeInvoice, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		count, err := db.GetNumberOfRecords(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 4, count)
	})

	t.Run("search folds non-ASCII case", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		alice := mustCreateUser(t, db, "alice@example.com")
		apples := mustInsertRecord(t, db, models.RecordTypeExpense, alice.ID, "Äpfel vom Markt", baseTime)
		mustInsertRecord(t, db, models.RecordTypeExpense, alice.ID, "Groceries", baseTime.Add(time.Hour))

		for _, query := range []string{"äpfel", "ÄPFEL", "MARKT"} {
			found, err := db.ListRecordsByOwner(ctx, models.RecordTypeExpense, alice.ID, models.RecordFilter{TitleContains: query})
			require.NoError(t, err)
			require.Len(t, found, 1, query)
			assert.Equal(t, apples.ID, found[0].ID)
		}
	})

	t.Run("bulk delete only touches own records", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		alice := mustCreateUser(t, db, "alice@example.com")
		bob := mustCreateUser(t, db, "bob@example.com")
		first := mustInsertRecord(t, db, models.RecordTypeInvoice, alice.ID, "First", baseTime)
		second := mustInsertRecord(t, db, models.RecordTypeInvoice, alice.ID, "Second", baseTime)
		foreign := mustInsertRecord(t, db, models.RecordTypeInvoice, bob.ID, "Foreign", baseTime)

		deleted, err := db.DeleteRecordsByIDsAndOwner(
			ctx,
			models.RecordTypeInvoice,
			[]string{first.ID, second.ID, second.ID, foreign.ID, uuid.New().String()},
			alice.ID,
		)
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		_, ok, err := db.FindRecordByIDAndOwner(ctx, models.RecordTypeInvoice, foreign.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		deleted, err = db.DeleteRecordsByIDsAndOwner(ctx, models.RecordTypeInvoice, nil, alice.ID)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("revocations", func(t *testing.T) {
		db := newStorage(t)
		ctx := context.Background()

		expired := uuid.New().String()
		live := uuid.New().String()

		require.NoError(t, db.RevokeSession(ctx, expired, baseTime.Add(-time.Minute)))
		require.NoError(t, db.RevokeSession(ctx, live, baseTime.Add(time.Hour)))
		require.NoError(t, db.RevokeSession(ctx, live, baseTime.Add(time.Hour)), "revoking twice is harmless")

		revoked, err := db.IsSessionRevoked(ctx, live)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = db.IsSessionRevoked(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.False(t, revoked)

		purged, err := db.PurgeExpiredRevocations(ctx, baseTime)
		require.NoError(t, err)
		assert.EqualValues(t, 1, purged)

		revoked, err = db.IsSessionRevoked(ctx, expired)
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = db.IsSessionRevoked(ctx, live)
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("ping", func(t *testing.T) {
		db := newStorage(t)
		assert.NoError(t, db.Ping(context.Background()))
	})
}
