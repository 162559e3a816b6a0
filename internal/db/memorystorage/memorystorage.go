// Package memorystorage keeps users, records and revocations in process memory.
// It is the default backend when neither a DSN nor a file is configured, and the
// backend most tests run against.
package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

type recordKey struct {
	recordID string
	ownerID  string
}

// MemoryStorage is safe for concurrent use.
type MemoryStorage struct {
	mu sync.RWMutex

	users        map[string]*user.User
	usersByEmail map[string]string
	records      map[models.RecordType]map[recordKey]models.Record
	revoked      map[string]time.Time
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users:        map[string]*user.User{},
		usersByEmail: map[string]string{},
		records: map[models.RecordType]map[recordKey]models.Record{
			models.RecordTypeExpense: {},
			models.RecordTypeInvoice: {},
		},
		revoked: map[string]time.Time{},
	}, nil
}

func (s *MemoryStorage) table(recordType models.RecordType) (map[recordKey]models.Record, error) {
	table, ok := s.records[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown record type %q", models.ErrMalformedInput, recordType)
	}
	return table, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByEmail[usr.Email]; taken {
		return "", models.ErrEmailTaken
	}

	stored := *usr
	stored.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	s.users[usr.ID] = &stored
	s.usersByEmail[usr.Email] = usr.ID

	return usr.ID, nil
}

func (s *MemoryStorage) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.usersByEmail[email]
	if !ok {
		return nil, false, nil
	}
	usr := *s.users[userID]

	return &usr, true, nil
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[userID]
	if !ok {
		return nil, false, nil
	}
	usr := *stored

	return &usr, true, nil
}

func (s *MemoryStorage) InsertRecord(ctx context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(rec.Type)
	if err != nil {
		return err
	}
	if _, ok := s.users[rec.UserID]; !ok {
		return fmt.Errorf("owner %q does not exist", rec.UserID)
	}
	// Record IDs are unique across owners, as the primary key is in SQL.
	for key := range table {
		if key.recordID == rec.ID {
			return fmt.Errorf("record %q already exists", rec.ID)
		}
	}
	table[recordKey{recordID: rec.ID, ownerID: rec.UserID}] = *rec

	return nil
}

func (s *MemoryStorage) FindRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (*models.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.table(recordType)
	if err != nil {
		return nil, false, err
	}
	rec, ok := table[recordKey{recordID: recordID, ownerID: ownerID}]
	if !ok {
		return nil, false, nil
	}

	return &rec, true, nil
}

func (s *MemoryStorage) UpdateRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
	patch models.RecordPatch,
) (*models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(recordType)
	if err != nil {
		return nil, false, err
	}
	key := recordKey{recordID: recordID, ownerID: ownerID}
	rec, ok := table[key]
	if !ok {
		return nil, false, nil
	}
	rec.Title = patch.Title
	rec.Description = patch.Description
	rec.Amount = patch.Amount
	rec.CurrencyCode = patch.CurrencyCode
	table[key] = rec

	return &rec, true, nil
}

func (s *MemoryStorage) DeleteRecordByIDAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordID string,
	ownerID string,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(recordType)
	if err != nil {
		return false, err
	}
	key := recordKey{recordID: recordID, ownerID: ownerID}
	if _, ok := table[key]; !ok {
		return false, nil
	}
	delete(table, key)

	return true, nil
}

func (s *MemoryStorage) DeleteRecordsByIDsAndOwner(
	ctx context.Context,
	recordType models.RecordType,
	recordIDs []string,
	ownerID string,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.table(recordType)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, recordID := range funk.UniqString(recordIDs) {
		key := recordKey{recordID: recordID, ownerID: ownerID}
		if _, ok := table[key]; ok {
			delete(table, key)
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStorage) ownedBy(table map[recordKey]models.Record, ownerID string) []models.Record {
	result := []models.Record{}
	for key, rec := range table {
		if key.ownerID == ownerID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

func (s *MemoryStorage) ListRecordsByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
	filter models.RecordFilter,
) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.table(recordType)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(filter.TitleContains)
	matching := funk.Filter(s.ownedBy(table, ownerID), func(rec models.Record) bool {
		return strings.Contains(strings.ToLower(rec.Title), needle)
	}).([]models.Record)

	return matching, nil
}

func (s *MemoryStorage) FindLatestRecordByOwner(
	ctx context.Context,
	recordType models.RecordType,
	ownerID string,
) (*models.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.table(recordType)
	if err != nil {
		return nil, false, err
	}
	owned := s.ownedBy(table, ownerID)
	if len(owned) == 0 {
		return nil, false, nil
	}

	return &owned[0], true, nil
}

func (s *MemoryStorage) RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revoked[tokenID]; !ok {
		s.revoked[tokenID] = expiresAt
	}

	return nil
}

func (s *MemoryStorage) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[tokenID]

	return ok, nil
}

func (s *MemoryStorage) PurgeExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for tokenID, expiresAt := range s.revoked {
		if !expiresAt.After(now) {
			delete(s.revoked, tokenID)
			purged++
		}
	}

	return purged, nil
}

func (s *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

func (s *MemoryStorage) GetNumberOfRecords(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, table := range s.records {
		count += int64(len(table))
	}

	return count, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
