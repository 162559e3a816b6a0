package grpcserver

import "time"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse describes the started session. The token itself travels in
// the "authorization" response header.
type LoginResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

// Record is the wire form of an expense or invoice. Amount is a decimal string.
type Record struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Amount       string    `json:"amount"`
	CurrencyCode string    `json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordFields are the client-supplied parts of a record.
type RecordFields struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type CreateRecordRequest struct {
	Kind string `json:"kind"`
	RecordFields
}

type ListRecordsRequest struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

type ListRecordsResponse struct {
	Records []*Record `json:"records"`
}

type GetRecordRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type UpdateRecordRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	RecordFields
}

type DeleteRecordRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type DeleteRecordResponse struct{}
