// Package credentials checks email/password pairs against stored users
// and registers new users with bcrypt password hashes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/user"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)
}

const (
	MinPasswordLength = 8

	// MaxPasswordLength is the number of bytes bcrypt takes into account.
	MaxPasswordLength = 72
)

var (
	ErrMalformedInput     = models.ErrMalformedInput
	ErrInvalidCredentials = models.ErrInvalidCredentials
	ErrEmailTaken         = models.ErrEmailTaken
)

var validate = validator.New()

// Credentials is a parsed email/password pair. Email is normalized.
type Credentials struct {
	Email    string
	Password string
}

// ParseCredentials validates the shape of a login or signup payload.
// It never consults storage.
func ParseCredentials(email, password string) (Credentials, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return Credentials{}, fmt.Errorf("%w: email is required", ErrMalformedInput)
	}
	if password == "" {
		return Credentials{}, fmt.Errorf("%w: password is required", ErrMalformedInput)
	}
	if err := validate.Var(email, "email"); err != nil {
		return Credentials{}, fmt.Errorf("%w: email is not valid", ErrMalformedInput)
	}

	return Credentials{Email: email, Password: password}, nil
}

// Verifier authenticates users by email and password.
type Verifier struct {
	db         userKeeper
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(v *Verifier) {
		v.bcryptCost = cost
	}
}

// WithClock replaces time.Now for the CreatedAt of registered users.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// New builds a Verifier on top of db.
func New(db userKeeper, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		db:         db,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	// Compared against when the email is unknown, so that both failure paths run bcrypt.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), v.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("in internal/credentials/credentials.go/New(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}
	v.dummyHash = dummyHash

	return v, nil
}

// Verify returns the user matching email and password.
//
// ErrMalformedInput is returned for an empty or badly shaped payload, and
// storage is not touched in that case. ErrInvalidCredentials is returned
// both for an unknown email and for a wrong password.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*user.User, error) {
	creds, err := ParseCredentials(email, password)
	if err != nil {
		return nil, err
	}

	usr, found, err := v.db.FindUserByEmail(ctx, creds.Email)
	if err != nil {
		return nil, fmt.Errorf("in internal/credentials/credentials.go/Verify(): error while `v.db.FindUserByEmail()` calling: %w", err)
	}

	if !found {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(creds.Password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return usr, nil
}

// Register creates a user with a freshly hashed password.
// ErrEmailTaken is returned if the email already belongs to someone.
func (v *Verifier) Register(ctx context.Context, email, password string) (*user.User, error) {
	creds, err := ParseCredentials(email, password)
	if err != nil {
		return nil, err
	}
	if len(creds.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrMalformedInput, MinPasswordLength)
	}
	if len(creds.Password) > MaxPasswordLength {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrMalformedInput, MaxPasswordLength)
	}
	if strings.TrimSpace(creds.Password) == "" {
		return nil, fmt.Errorf("%w: password must not be blank", ErrMalformedInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), v.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("in internal/credentials/credentials.go/Register(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}

	usr := &user.User{
		ID:           uuid.NewString(),
		Email:        creds.Email,
		PasswordHash: hash,
		CreatedAt:    v.now().UTC(),
	}

	if _, err := v.db.CreateUser(ctx, usr); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("in internal/credentials/credentials.go/Register(): error while `v.db.CreateUser()` calling: %w", err)
	}

	return usr, nil
}
