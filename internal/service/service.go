// Package service implements the finance record use cases behind the HTTP
// and gRPC adapters. Reads and writes of a single record go through the
// ownership guard; listing is owner-scoped by storage.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

type recordsKeeper interface {
	InsertRecord(ctx context.Context, rec *models.Record) error

	ListRecordsByOwner(
		ctx context.Context,
		recordType models.RecordType,
		ownerID string,
		filter models.RecordFilter,
	) ([]models.Record, error)

	FindLatestRecordByOwner(
		ctx context.Context,
		recordType models.RecordType,
		ownerID string,
	) (*models.Record, bool, error)
}

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string) (*user.User, bool, error)
}

type statsKeeper interface {
	GetNumberOfRecords(ctx context.Context) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	recordsKeeper
	userKeeper
	statsKeeper
	pinger
}

type ownershipGuard interface {
	Authorize(
		ctx context.Context,
		identity *models.Identity,
		recordType models.RecordType,
		recordID string,
	) (*models.Record, error)

	Update(
		ctx context.Context,
		identity *models.Identity,
		recordType models.RecordType,
		recordID string,
		patch models.RecordPatch,
	) (*models.Record, error)

	Delete(
		ctx context.Context,
		identity *models.Identity,
		recordType models.RecordType,
		recordID string,
	) error

	DeleteMany(
		ctx context.Context,
		identity *models.Identity,
		recordType models.RecordType,
		recordIDs []string,
	) (int64, error)
}

var (
	ErrMalformedInput  = models.ErrMalformedInput
	ErrUnauthenticated = models.ErrUnauthenticated
	ErrNotFound        = models.ErrNotFound
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

var validate = validator.New()

// RecordInput is a validated record payload.
type RecordInput struct {
	Title        string
	Description  string
	Amount       int64
	CurrencyCode string
}

// Patch returns the input as a storage patch.
func (in RecordInput) Patch() models.RecordPatch {
	return models.RecordPatch{
		Title:        in.Title,
		Description:  in.Description,
		Amount:       in.Amount,
		CurrencyCode: in.CurrencyCode,
	}
}

// ParseRecordInput validates a create or update payload. It never consults storage.
func ParseRecordInput(title, description, amount, currencyCode string) (RecordInput, error) {
	title = strings.TrimSpace(title)
	if err := validate.Var(title, fmt.Sprintf("required,max=%d", MaxTitleLength)); err != nil {
		return RecordInput{}, fmt.Errorf("%w: title is required and must be at most %d characters", ErrMalformedInput, MaxTitleLength)
	}

	description = strings.TrimSpace(description)
	if err := validate.Var(description, fmt.Sprintf("max=%d", MaxDescriptionLength)); err != nil {
		return RecordInput{}, fmt.Errorf("%w: description must be at most %d characters", ErrMalformedInput, MaxDescriptionLength)
	}

	cents, err := ParseAmount(amount)
	if err != nil {
		return RecordInput{}, err
	}

	currencyCode = strings.ToUpper(strings.TrimSpace(currencyCode))
	if currencyCode == "" {
		currencyCode = models.DefaultCurrencyCode
	}
	if err := validate.Var(currencyCode, "iso4217"); err != nil {
		return RecordInput{}, fmt.Errorf("%w: unknown currency code %q", ErrMalformedInput, currencyCode)
	}

	return RecordInput{
		Title:        title,
		Description:  description,
		Amount:       cents,
		CurrencyCode: currencyCode,
	}, nil
}

// ToRecordResponse renders a record for the API.
func ToRecordResponse(rec *models.Record) *models.RecordResponse {
	if rec == nil {
		return nil
	}
	return &models.RecordResponse{
		ID:           rec.ID,
		Title:        rec.Title,
		Description:  rec.Description,
		Amount:       FormatAmount(rec.Amount),
		CurrencyCode: rec.CurrencyCode,
		CreatedAt:    rec.CreatedAt,
	}
}

// Dashboard holds the newest record of each type; either may be nil.
type Dashboard struct {
	LatestExpense *models.Record
	LatestInvoice *models.Record
}

type Service struct {
	db    storage
	guard ownershipGuard
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock replaces time.Now for the CreatedAt of new records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(db storage, guard ownershipGuard, opts ...Option) *Service {
	s := &Service{
		db:    db,
		guard: guard,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func checkOwner(identity *models.Identity, recordType models.RecordType) error {
	if identity == nil || identity.UserID == "" {
		return ErrUnauthenticated
	}
	if !recordType.Valid() {
		return fmt.Errorf("%w: unknown record type %q", ErrMalformedInput, recordType)
	}
	return nil
}

// CurrentUser returns the user behind identity. A session of a user that no
// longer exists counts as unauthenticated.
func (s *Service) CurrentUser(ctx context.Context, identity *models.Identity) (*user.User, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	usr, found, err := s.db.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/CurrentUser(): error while `s.db.GetUserByID()` calling: %w", err)
	}
	if !found {
		return nil, ErrUnauthenticated
	}

	return usr, nil
}

// Create stores a new record owned by identity.
func (s *Service) Create(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	input RecordInput,
) (*models.Record, error) {
	if err := checkOwner(identity, recordType); err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:           uuid.NewString(),
		Type:         recordType,
		Title:        input.Title,
		Description:  input.Description,
		Amount:       input.Amount,
		CurrencyCode: input.CurrencyCode,
		CreatedAt:    s.now().UTC(),
		UserID:       identity.UserID,
	}
	if err := s.db.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Create(): error while `s.db.InsertRecord()` calling: %w", err)
	}

	return rec, nil
}

// List returns identity's records of recordType, newest first, whose title
// contains query case-insensitively. An empty query matches everything.
func (s *Service) List(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	query string,
) ([]models.Record, error) {
	if err := checkOwner(identity, recordType); err != nil {
		return nil, err
	}

	records, err := s.db.ListRecordsByOwner(
		ctx,
		recordType,
		identity.UserID,
		models.RecordFilter{TitleContains: strings.TrimSpace(query)},
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/List(): error while `s.db.ListRecordsByOwner()` calling: %w", err)
	}

	return records, nil
}

func (s *Service) Get(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
) (*models.Record, error) {
	return s.guard.Authorize(ctx, identity, recordType, recordID)
}

func (s *Service) Update(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
	input RecordInput,
) (*models.Record, error) {
	return s.guard.Update(ctx, identity, recordType, recordID, input.Patch())
}

func (s *Service) Delete(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
) error {
	return s.guard.Delete(ctx, identity, recordType, recordID)
}

func (s *Service) DeleteMany(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordIDs []string,
) (int64, error) {
	return s.guard.DeleteMany(ctx, identity, recordType, recordIDs)
}

// Dashboard returns identity's latest expense and latest invoice.
func (s *Service) Dashboard(ctx context.Context, identity *models.Identity) (Dashboard, error) {
	if identity == nil || identity.UserID == "" {
		return Dashboard{}, ErrUnauthenticated
	}

	var result Dashboard
	for recordType, target := range map[models.RecordType]**models.Record{
		models.RecordTypeExpense: &result.LatestExpense,
		models.RecordTypeInvoice: &result.LatestInvoice,
	} {
		rec, found, err := s.db.FindLatestRecordByOwner(ctx, recordType, identity.UserID)
		if err != nil {
			return Dashboard{}, fmt.Errorf("in internal/service/service.go/Dashboard(): error while `s.db.FindLatestRecordByOwner()` calling: %w", err)
		}
		if found {
			*target = rec
		}
	}

	return result, nil
}

// Stats returns the total number of records and users.
func (s *Service) Stats(ctx context.Context) (models.InternalStatsResponse, error) {
	records, err := s.db.GetNumberOfRecords(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Records: records,
		Users:   users,
	}, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
