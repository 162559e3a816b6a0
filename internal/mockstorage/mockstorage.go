// Package mockstorage provides a testify-based mock implementation
// of the storage interfaces used by credentials, auth, guard and service.
// It is used to assert which storage calls a code path makes, or does not make.
package mockstorage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

// StorageMock is a testify mock that implements every storage method.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, if set, replaces the generic mock handler for GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfRecords, if set, replaces the generic mock handler for GetNumberOfRecords.
	OnGetNumberOfRecords func(ctx context.Context) (int64, error)
}

func record(args mock.Arguments, index int) *models.Record {
	rec, _ := args.Get(index).(*models.Record)
	return rec
}

// Ping mocks the pinger interface to simulate a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	args := m.Called(ctx, usr)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) InsertRecord(ctx context.Context, rec *models.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *StorageMock) FindRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (*models.Record, bool, error) {
	args := m.Called(ctx, recordType, recordID, ownerID)
	return record(args, 0), args.Bool(1), args.Error(2)
}

func (m *StorageMock) UpdateRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
	patch models.RecordPatch,
) (*models.Record, bool, error) {
	args := m.Called(ctx, recordType, recordID, ownerID, patch)
	return record(args, 0), args.Bool(1), args.Error(2)
}

func (m *StorageMock) DeleteRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (bool, error) {
	args := m.Called(ctx, recordType, recordID, ownerID)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) DeleteRecordsByIDsAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordIDs []string,
	ownerID string,
) (int64, error) {
	args := m.Called(ctx, recordType, recordIDs, ownerID)
	deleted, _ := args.Get(0).(int64)
	return deleted, args.Error(1)
}

func (m *StorageMock) ListRecordsByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
	filter models.RecordFilter,
) ([]models.Record, error) {
	args := m.Called(ctx, recordType, ownerID, filter)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

func (m *StorageMock) FindLatestRecordByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
) (*models.Record, bool, error) {
	args := m.Called(ctx, recordType, ownerID)
	return record(args, 0), args.Bool(1), args.Error(2)
}

func (m *StorageMock) RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error {
	args := m.Called(ctx, tokenID, expiresAt)
	return args.Error(0)
}

func (m *StorageMock) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	purged, _ := args.Get(0).(int64)
	return purged, args.Error(1)
}

// GetNumberOfUsers returns the number of users as defined by the mock.
//
// If OnGetNumberOfUsers is non-nil, it will be called to produce the result.
// Otherwise, the method returns 0 and no error by default.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	return 0, nil
}

// GetNumberOfRecords returns the number of records as defined by the mock.
//
// If OnGetNumberOfRecords is defined, the method will call it and return
// its result. Otherwise, it defaults to returning 0 and no error.
func (m *StorageMock) GetNumberOfRecords(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfRecords != nil {
		return m.OnGetNumberOfRecords(ctx)
	}
	return 0, nil
}
