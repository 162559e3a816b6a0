package models

import (
	"errors"
	"time"
)

// RecordType names the table an owned record lives in.
type RecordType string

const (
	RecordTypeExpense RecordType = "expense"
	RecordTypeInvoice RecordType = "invoice"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	return t == RecordTypeExpense || t == RecordTypeInvoice
}

// Identity is the authenticated user established by resolving a session token.
type Identity struct {
	UserID string

	// SessionID is the token's jti; logout revokes it.
	SessionID string

	ExpiresAt time.Time
}

// DefaultCurrencyCode is applied when a record is created without a currency.
const DefaultCurrencyCode = "USD"

// Record is a finance entry (expense or invoice) owned by exactly one user.
type Record struct {
	ID           string     `json:"id"`
	Type         RecordType `json:"type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Amount       int64      `json:"amount"`
	CurrencyCode string     `json:"currency_code"`
	CreatedAt    time.Time  `json:"created_at"`
	UserID       string     `json:"-"`
}

// RecordPatch is the set of mutable record fields. The owner is never part of it.
type RecordPatch struct {
	Title        string
	Description  string
	Amount       int64
	CurrencyCode string
}

// RecordFilter narrows ListRecordsByOwner results.
type RecordFilter struct {
	// TitleContains is matched case-insensitively; empty means no filter.
	TitleContains string
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RecordRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type RecordResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	CurrencyCode string    `json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// DashboardResponse carries the owner's newest expense and newest invoice; either may be null.
type DashboardResponse struct {
	LatestExpense *RecordResponse `json:"first_expense"`
	LatestInvoice *RecordResponse `json:"first_invoice"`
}

type DeleteRecordsRequest []string

type DeleteRecordsResponse struct {
	Deleted int64 `json:"deleted"`
}

type InternalStatsResponse struct {
	Records int64 `json:"records"`
	Users   int64 `json:"users"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeMemory
)

var (
	// ErrMalformedInput means the request payload has the wrong shape; storage was not consulted.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated means no valid session was presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound covers both an absent record and a record owned by someone else.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned on signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)
