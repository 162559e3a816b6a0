// Package guard authorizes access to owned records. Every check is a single
// lookup or statement on the (record id, owner id) pair, so a record owned by
// someone else is indistinguishable from one that does not exist.
package guard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/beerich/internal/models"
)

type recordKeeper interface {
	FindRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID string,
		ownerID string,
	) (*models.Record, bool, error)

	UpdateRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID string,
		ownerID string,
		patch models.RecordPatch,
	) (*models.Record, bool, error)

	DeleteRecordByIDAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordID string,
		ownerID string,
	) (bool, error)

	DeleteRecordsByIDsAndOwner(
		ctx context.Context,
		recordType models.RecordType,
		recordIDs []string,
		ownerID string,
	) (int64, error)
}

var (
	ErrMalformedInput  = models.ErrMalformedInput
	ErrUnauthenticated = models.ErrUnauthenticated
	ErrNotFound        = models.ErrNotFound
)

// Guard checks ownership before records are read, changed or removed.
type Guard struct {
	db recordKeeper
}

func New(db recordKeeper) *Guard {
	return &Guard{db: db}
}

// canonicalID returns the lowercase hyphenated form of a UUID, or false.
func canonicalID(recordID string) (string, bool) {
	parsed, err := uuid.Parse(recordID)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func checkRequest(identity *models.Identity, recordType models.RecordType) error {
	if identity == nil || identity.UserID == "" {
		return ErrUnauthenticated
	}
	if !recordType.Valid() {
		return fmt.Errorf("%w: unknown record type %q", ErrMalformedInput, recordType)
	}
	return nil
}

// Authorize returns the record if identity owns it, and ErrNotFound otherwise.
func (g *Guard) Authorize(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
) (*models.Record, error) {
	if err := checkRequest(identity, recordType); err != nil {
		return nil, err
	}
	recordID, ok := canonicalID(recordID)
	if !ok {
		return nil, ErrNotFound
	}

	rec, found, err := g.db.FindRecordByIDAndOwner(ctx, recordType, recordID, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("in internal/guard/guard.go/Authorize(): error while `g.db.FindRecordByIDAndOwner()` calling: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	return rec, nil
}

// Update applies patch to a record owned by identity. The ownership check and
// the write are the same statement.
func (g *Guard) Update(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
	patch models.RecordPatch,
) (*models.Record, error) {
	if err := checkRequest(identity, recordType); err != nil {
		return nil, err
	}
	recordID, ok := canonicalID(recordID)
	if !ok {
		return nil, ErrNotFound
	}

	rec, found, err := g.db.UpdateRecordByIDAndOwner(ctx, recordType, recordID, identity.UserID, patch)
	if err != nil {
		return nil, fmt.Errorf("in internal/guard/guard.go/Update(): error while `g.db.UpdateRecordByIDAndOwner()` calling: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	return rec, nil
}

// Delete removes a record owned by identity.
func (g *Guard) Delete(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordID string,
) error {
	if err := checkRequest(identity, recordType); err != nil {
		return err
	}
	recordID, ok := canonicalID(recordID)
	if !ok {
		return ErrNotFound
	}

	deleted, err := g.db.DeleteRecordByIDAndOwner(ctx, recordType, recordID, identity.UserID)
	if err != nil {
		return fmt.Errorf("in internal/guard/guard.go/Delete(): error while `g.db.DeleteRecordByIDAndOwner()` calling: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	return nil
}

// DeleteMany removes those of recordIDs that identity owns and returns how many
// were removed. Unparsable IDs and IDs of other owners are skipped. An empty
// list is ErrMalformedInput.
func (g *Guard) DeleteMany(
	ctx context.Context,
	identity *models.Identity,
	recordType models.RecordType,
	recordIDs []string,
) (int64, error) {
	if err := checkRequest(identity, recordType); err != nil {
		return 0, err
	}
	if len(recordIDs) == 0 {
		return 0, fmt.Errorf("%w: no record ids given", ErrMalformedInput)
	}

	canonical := make([]string, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		if id, ok := canonicalID(recordID); ok {
			canonical = append(canonical, id)
		}
	}
	canonical = funk.UniqString(canonical)
	if len(canonical) == 0 {
		return 0, nil
	}

	deleted, err := g.db.DeleteRecordsByIDsAndOwner(ctx, recordType, canonical, identity.UserID)
	if err != nil {
		return 0, fmt.Errorf("in internal/guard/guard.go/DeleteMany(): error while `g.db.DeleteRecordsByIDsAndOwner()` calling: %w", err)
	}

	return deleted, nil
}
