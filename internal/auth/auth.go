// Package auth manages signed session tokens: issuing them on login,
// resolving them back to an identity, and revoking them on logout.
// Tokens travel in a cookie, an Authorization header or gRPC metadata.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
)

type revocationKeeper interface {
	RevokeSession(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Auth handles session tokens and the HTTP middlewares built on them.
type Auth struct {
	// db keeps the IDs of revoked tokens.
	db revocationKeeper

	// cookieName is the name of the cookie used to store the JWT.
	cookieName string

	// signingKey is the HMAC key used to sign JWTs.
	signingKey []byte

	ttl          time.Duration
	secureCookie bool
	now          func() time.Time
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds a user-specific identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// IdentityKey is the context key used to store and retrieve the resolved identity.
const IdentityKey ContextKey = "identity"

var ErrUnauthenticated = models.ErrUnauthenticated

// Option configures Auth.
type Option func(*Auth)

// WithSecureCookie sets the Secure attribute on issued cookies.
func WithSecureCookie(secure bool) Option {
	return func(a *Auth) {
		a.secureCookie = secure
	}
}

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) {
		a.now = now
	}
}

// New creates a new Auth with the given revocation storage,
// cookie name, JWT signing key and session lifetime.
func New(
	db revocationKeeper,
	cookieName string,
	signingKey []byte,
	ttl time.Duration,
	opts ...Option,
) *Auth {
	a := &Auth{
		db:         db,
		cookieName: cookieName,
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// CookieName returns the name of the session cookie.
func (a *Auth) CookieName() string {
	return a.cookieName
}

// IssueToken signs a new session token for identity and returns it with its expiry.
func (a *Auth) IssueToken(identity models.Identity) (string, time.Time, error) {
	if identity.UserID == "" {
		return "", time.Time{}, errors.New("in internal/auth/auth.go/IssueToken(): empty user ID")
	}

	issuedAt := a.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: identity.UserID,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("in internal/auth/auth.go/IssueToken(): error while `token.SignedString()` calling: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Issue returns the session cookie for identity.
func (a *Auth) Issue(identity models.Identity) (*http.Cookie, error) {
	tokenString, expiresAt, err := a.IssueToken(identity)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     a.cookieName,
		Value:    tokenString,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func (a *Auth) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingKey, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, errors.New("token is expired")
	}
	if !claims.VerifyIssuedAt(now.Add(time.Minute), false) {
		return nil, errors.New("token is issued in the future")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id")
	}
	if claims.ID == "" {
		return nil, errors.New("token has no jti")
	}

	return claims, nil
}

// Resolve returns the identity carried by tokenString, or nil when the token
// is absent, malformed, expired, signed with another key or algorithm, or revoked.
func (a *Auth) Resolve(ctx context.Context, tokenString string) *models.Identity {
	if tokenString == "" {
		return nil
	}

	claims, err := a.parse(tokenString)
	if err != nil {
		logger.Log.Debugln("Error calling the `a.parse()`: ", zap.Error(err))
		return nil
	}

	revoked, err := a.db.IsSessionRevoked(ctx, claims.ID)
	if err != nil {
		logger.Log.Errorw("session revocation lookup failed", zap.Error(err))
		return nil
	}
	if revoked {
		return nil
	}

	return &models.Identity{
		UserID:    claims.UserID,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
}

// RequireIdentity is Resolve that fails with ErrUnauthenticated instead of returning nil.
func (a *Auth) RequireIdentity(ctx context.Context, tokenString string) (*models.Identity, error) {
	identity := a.Resolve(ctx, tokenString)
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	return identity, nil
}

// RevokeToken puts the token's ID on the revocation list until the token expires.
// A token that is malformed, forged or expired is ignored. The revocation list
// is not consulted, so an outage fails the logout instead of skipping it.
func (a *Auth) RevokeToken(ctx context.Context, tokenString string) error {
	if tokenString == "" {
		return nil
	}

	claims, err := a.parse(tokenString)
	if err != nil {
		logger.Log.Debugln("Error calling the `a.parse()`: ", zap.Error(err))
		return nil
	}

	if err := a.db.RevokeSession(ctx, claims.ID, claims.ExpiresAt.Time.UTC()); err != nil {
		return fmt.Errorf("in internal/auth/auth.go/RevokeToken(): error while `a.db.RevokeSession()` calling: %w", err)
	}

	return nil
}

// ClearCookie returns a cookie that makes the browser drop the session.
func (a *Auth) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// Revoke revokes tokenString and returns the clearing cookie.
// The cookie is returned even when the revocation could not be stored.
func (a *Auth) Revoke(ctx context.Context, tokenString string) (*http.Cookie, error) {
	return a.ClearCookie(), a.RevokeToken(ctx, tokenString)
}

// TokenFromRequest takes the token from the Authorization header,
// with or without the Bearer scheme, and falls back to the session cookie.
func (a *Auth) TokenFromRequest(request *http.Request) string {
	if header := strings.TrimSpace(request.Header.Get("Authorization")); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return header
	}

	cookie, err := request.Cookie(a.cookieName)
	if err != nil {
		return ""
	}

	return cookie.Value
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext returns the identity stored by AuthenticateUser.
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*models.Identity)
	return identity, ok && identity != nil
}

// UserIDFromContext returns the authenticated user's ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return identity.UserID, true
}

// AuthenticateUser is an HTTP middleware that resolves the request's token
// and stores the identity in the request context. Anonymous requests pass through.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		identity := a.Resolve(request.Context(), a.TokenFromRequest(request))
		if identity == nil {
			h.ServeHTTP(response, request)
			return
		}

		h.ServeHTTP(response, request.WithContext(WithIdentity(request.Context(), identity)))
	}

	return http.HandlerFunc(middleware)
}

// RequireUser is an HTTP middleware that answers 401 unless AuthenticateUser
// has put an identity into the request context.
func (a *Auth) RequireUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := IdentityFromContext(request.Context()); !ok {
			response.Header().Set("Content-Type", "application/json")
			response.WriteHeader(http.StatusUnauthorized)
			if err := json.NewEncoder(response).Encode(models.ErrorResponse{Error: ErrUnauthenticated.Error()}); err != nil {
				logger.Log.Debugln("Error calling the `json.NewEncoder(response).Encode()`: ", zap.Error(err))
			}
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}
