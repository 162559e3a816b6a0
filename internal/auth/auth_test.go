package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/beerich/internal/db/memorystorage"
	"github.com/patric-chuzhbe/beerich/internal/mockstorage"
	"github.com/patric-chuzhbe/beerich/internal/models"
)

const (
	testCookieName = "__session"
	testTTL        = time.Hour
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestAuth(t *testing.T, opts ...Option) (*Auth, *memorystorage.MemoryStorage, *testClock) {
	t.Helper()
	db, err := memorystorage.New()
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(db, testCookieName, testSigningKey, testTTL, opts...), db, clock
}

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	tokenString, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tokenString
}

func TestIssueAndResolve(t *testing.T) {
	a, _, clock := newTestAuth(t, WithSecureCookie(true))

	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, testCookieName, cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(testTTL.Seconds()), cookie.MaxAge)

	identity := a.Resolve(context.Background(), cookie.Value)
	require.NotNil(t, identity)
	assert.Equal(t, "user-1", identity.UserID)
	assert.NotEmpty(t, identity.SessionID)
	assert.Equal(t, clock.now.Add(testTTL), identity.ExpiresAt)
}

func TestIssueRejectsEmptyIdentity(t *testing.T) {
	a, _, _ := newTestAuth(t)

	_, err := a.Issue(models.Identity{})
	assert.Error(t, err)
}

func TestEachIssuedTokenHasItsOwnID(t *testing.T) {
	a, _, _ := newTestAuth(t)

	first, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)
	second, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	assert.NotEqual(
		t,
		a.Resolve(context.Background(), first.Value).SessionID,
		a.Resolve(context.Background(), second.Value).SessionID,
	)
}

func TestResolveRejects(t *testing.T) {
	a, _, clock := newTestAuth(t)
	valid, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	claims := func(userID string, expiresAt time.Time) Claims {
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-1",
				IssuedAt:  jwt.NewNumericDate(clock.now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
		}
	}

	testCases := map[string]string{
		"empty":            "",
		"garbage":          "not-a-jwt",
		"tampered":         valid.Value[:len(valid.Value)-2] + "xx",
		"other_key":        signClaims(t, jwt.SigningMethodHS256, []byte("another-key-another-key-another-k"), claims("user-1", clock.now.Add(time.Hour))),
		"other_hmac_alg":   signClaims(t, jwt.SigningMethodHS512, testSigningKey, claims("user-1", clock.now.Add(time.Hour))),
		"alg_none":         signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims("user-1", clock.now.Add(time.Hour))),
		"expired":          signClaims(t, jwt.SigningMethodHS256, testSigningKey, claims("user-1", clock.now.Add(-time.Second))),
		"expires_now":      signClaims(t, jwt.SigningMethodHS256, testSigningKey, claims("user-1", clock.now)),
		"missing_user_id":  signClaims(t, jwt.SigningMethodHS256, testSigningKey, claims("", clock.now.Add(time.Hour))),
		"missing_expiry":   signClaims(t, jwt.SigningMethodHS256, testSigningKey, Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "jti-1"}, UserID: "user-1"}),
		"missing_token_id": signClaims(t, jwt.SigningMethodHS256, testSigningKey, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour))}, UserID: "user-1"}),
	}

	for name, tokenString := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, a.Resolve(context.Background(), tokenString))

			_, err := a.RequireIdentity(context.Background(), tokenString)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestResolveAfterExpiry(t *testing.T) {
	a, _, clock := newTestAuth(t)
	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	clock.now = clock.now.Add(testTTL - time.Second)
	assert.NotNil(t, a.Resolve(context.Background(), cookie.Value))

	clock.now = clock.now.Add(time.Second)
	assert.Nil(t, a.Resolve(context.Background(), cookie.Value))
}

func TestRevoke(t *testing.T) {
	a, db, clock := newTestAuth(t)
	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)
	identity := a.Resolve(context.Background(), cookie.Value)
	require.NotNil(t, identity)

	cleared, err := a.Revoke(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, testCookieName, cleared.Name)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Equal(t, time.Unix(0, 0), cleared.Expires)

	assert.Nil(t, a.Resolve(context.Background(), cookie.Value), "a logged-out token must not resolve again")

	revoked, err := db.IsSessionRevoked(context.Background(), identity.SessionID)
	require.NoError(t, err)
	assert.True(t, revoked)

	purged, err := db.PurgeExpiredRevocations(context.Background(), clock.now.Add(testTTL))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged, "revocation is kept until the token's own expiry")
}

func TestRevokeUnresolvableTokenStillClearsCookie(t *testing.T) {
	db := &mockstorage.StorageMock{}
	a := New(db, testCookieName, testSigningKey, testTTL)

	cleared, err := a.Revoke(context.Background(), "garbage")
	require.NoError(t, err)
	assert.Equal(t, -1, cleared.MaxAge)
	db.AssertNotCalled(t, "RevokeSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveFailsClosedOnRevocationLookupError(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("IsSessionRevoked", mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))
	a := New(db, testCookieName, testSigningKey, testTTL)

	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	assert.Nil(t, a.Resolve(context.Background(), cookie.Value))
	db.AssertExpectations(t)
}

func TestRevokeStorageFailure(t *testing.T) {
	db := &mockstorage.StorageMock{}
	db.On("RevokeSession", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	a := New(db, testCookieName, testSigningKey, testTTL)

	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	cleared, err := a.Revoke(context.Background(), cookie.Value)
	assert.Error(t, err)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

// flakyRevocations fails revocation lookups while down is set.
type flakyRevocations struct {
	*memorystorage.MemoryStorage
	down bool
}

func (f *flakyRevocations) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	if f.down {
		return false, errors.New("connection refused")
	}
	return f.MemoryStorage.IsSessionRevoked(ctx, tokenID)
}

func TestRevokeDuringLookupOutage(t *testing.T) {
	memory, err := memorystorage.New()
	require.NoError(t, err)
	db := &flakyRevocations{MemoryStorage: memory}
	a := New(db, testCookieName, testSigningKey, testTTL)

	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	db.down = true
	_, err = a.Revoke(context.Background(), cookie.Value)
	require.NoError(t, err)

	db.down = false
	assert.Nil(t, a.Resolve(context.Background(), cookie.Value), "the token stays revoked once storage recovers")
}

func TestRevokeTwiceIsNotAnError(t *testing.T) {
	a, _, _ := newTestAuth(t)
	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, a.RevokeToken(context.Background(), cookie.Value))
	assert.NoError(t, a.RevokeToken(context.Background(), cookie.Value))
}

func TestMiddlewares(t *testing.T) {
	a, _, _ := newTestAuth(t)
	cookie, err := a.Issue(models.Identity{UserID: "user-1"})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Use(a.AuthenticateUser)
	router.Get("/optional", func(response http.ResponseWriter, request *http.Request) {
		userID, ok := UserIDFromContext(request.Context())
		if !ok {
			userID = "anonymous"
		}
		_, _ = fmt.Fprint(response, userID)
	})
	router.With(a.RequireUser).Get("/required", func(response http.ResponseWriter, request *http.Request) {
		userID, _ := UserIDFromContext(request.Context())
		_, _ = fmt.Fprint(response, userID)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	type tRequest struct {
		path   string
		header string
		cookie string
	}
	type tExpectedResponse struct {
		code int
		body string
	}
	type tTestCase struct {
		name             string
		request          tRequest
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "optional_anonymous",
			request:          tRequest{path: "/optional"},
			expectedResponse: tExpectedResponse{http.StatusOK, "anonymous"},
		},
		{
			name:             "optional_cookie",
			request:          tRequest{path: "/optional", cookie: cookie.Value},
			expectedResponse: tExpectedResponse{http.StatusOK, "user-1"},
		},
		{
			name:             "required_bearer",
			request:          tRequest{path: "/required", header: "Bearer " + cookie.Value},
			expectedResponse: tExpectedResponse{http.StatusOK, "user-1"},
		},
		{
			name:             "required_raw_header",
			request:          tRequest{path: "/required", header: cookie.Value},
			expectedResponse: tExpectedResponse{http.StatusOK, "user-1"},
		},
		{
			name:             "header_wins_over_cookie",
			request:          tRequest{path: "/required", header: "Bearer garbage", cookie: cookie.Value},
			expectedResponse: tExpectedResponse{http.StatusUnauthorized, `{"error":"unauthenticated"}`},
		},
		{
			name:             "required_anonymous",
			request:          tRequest{path: "/required"},
			expectedResponse: tExpectedResponse{http.StatusUnauthorized, `{"error":"unauthenticated"}`},
		},
		{
			name:             "required_garbage_cookie",
			request:          tRequest{path: "/required", cookie: "garbage"},
			expectedResponse: tExpectedResponse{http.StatusUnauthorized, `{"error":"unauthenticated"}`},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			req := resty.New().R()
			if testCase.request.header != "" {
				req.SetHeader("Authorization", testCase.request.header)
			}
			if testCase.request.cookie != "" {
				req.SetCookie(&http.Cookie{Name: testCookieName, Value: testCase.request.cookie})
			}

			resp, err := req.Get(srv.URL + testCase.request.path)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.Equal(t, testCase.expectedResponse.body, resp.String())
		})
	}
}
