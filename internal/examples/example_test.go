package examples

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/beerich/internal/auth"
	"github.com/patric-chuzhbe/beerich/internal/config"
	"github.com/patric-chuzhbe/beerich/internal/credentials"
	"github.com/patric-chuzhbe/beerich/internal/db/memorystorage"
	"github.com/patric-chuzhbe/beerich/internal/guard"
	"github.com/patric-chuzhbe/beerich/internal/ipchecker"
	"github.com/patric-chuzhbe/beerich/internal/logger"
	"github.com/patric-chuzhbe/beerich/internal/models"
	"github.com/patric-chuzhbe/beerich/internal/router"
	"github.com/patric-chuzhbe/beerich/internal/service"
)

func setupTestServer(t *testing.T) *httptest.Server {
	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if t != nil {
		require.NoError(t, err)
	} else if err != nil {
		panic(err)
	}

	db, err := memorystorage.New()
	if err != nil {
		panic(err)
	}

	signingKey, err := cfg.SessionSecret()
	if err != nil {
		panic(err)
	}

	verifier, err := credentials.New(db, credentials.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		panic(err)
	}

	ipChecker, err := ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		panic(err)
	}

	theRouter := router.New(
		service.New(db, guard.New(db)),
		verifier,
		auth.New(db, cfg.SessionCookieName, signingKey, cfg.SessionTTL),
		ipChecker,
	)

	if err := logger.Init("error"); err != nil {
		panic(err)
	}

	return httptest.NewServer(theRouter)
}

func newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		panic(err)
	}
	return &http.Client{Jar: jar}
}

func postJSON(client *http.Client, url string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	return resp
}

func Example_ping() {
	server := setupTestServer(nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ping")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	fmt.Println("Status Code:", resp.StatusCode)

	// Output:
	// Status Code: 200
}

func Example_signup() {
	server := setupTestServer(nil)
	defer server.Close()

	resp := postJSON(newClient(), server.URL+"/api/user/signup", models.CredentialsRequest{
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	defer resp.Body.Close()

	var created models.UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	fmt.Println("Email:", created.Email)

	// Output:
	// Status Code: 201
	// Email: alice@example.com
}

func Example_login() {
	server := setupTestServer(nil)
	defer server.Close()

	credentialsPayload := models.CredentialsRequest{Email: "alice@example.com", Password: "correct horse"}
	signupResp := postJSON(newClient(), server.URL+"/api/user/signup", credentialsPayload)
	signupResp.Body.Close()

	wrong := postJSON(newClient(), server.URL+"/api/user/login", models.CredentialsRequest{
		Email:    "alice@example.com",
		Password: "wrong horse",
	})
	defer wrong.Body.Close()
	wrongBody, err := io.ReadAll(wrong.Body)
	if err != nil {
		panic(err)
	}

	right := postJSON(newClient(), server.URL+"/api/user/login", credentialsPayload)
	defer right.Body.Close()

	fmt.Println("Wrong password:", wrong.StatusCode, string(bytes.TrimSpace(wrongBody)))
	fmt.Println("Right password:", right.StatusCode)

	// Output:
	// Wrong password: 401 {"error":"invalid email or password"}
	// Right password: 200
}

func Example_createRecord() {
	server := setupTestServer(nil)
	defer server.Close()

	client := newClient()
	signupResp := postJSON(client, server.URL+"/api/user/signup", models.CredentialsRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	signupResp.Body.Close()

	resp := postJSON(client, server.URL+"/api/expenses", models.RecordRequest{
		Title:  "Dinner",
		Amount: "42.5",
	})
	defer resp.Body.Close()

	var created models.RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		panic(err)
	}

	fmt.Println("Status Code:", resp.StatusCode)
	fmt.Println("Amount:", created.Amount, created.CurrencyCode)

	// Output:
	// Status Code: 201
	// Amount: 42.50 USD
}

func Example_ownership() {
	server := setupTestServer(nil)
	defer server.Close()

	alice := newClient()
	aliceSignup := postJSON(alice, server.URL+"/api/user/signup", models.CredentialsRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	aliceSignup.Body.Close()

	bob := newClient()
	bobSignup := postJSON(bob, server.URL+"/api/user/signup", models.CredentialsRequest{
		Email:    "bob@example.com",
		Password: "correct horse",
	})
	bobSignup.Body.Close()

	createResp := postJSON(alice, server.URL+"/api/expenses", models.RecordRequest{Title: "Dinner", Amount: "42.50"})
	defer createResp.Body.Close()
	var created models.RecordResponse
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		panic(err)
	}

	for _, reader := range []struct {
		name   string
		client *http.Client
	}{
		{"alice", alice},
		{"bob", bob},
	} {
		resp, err := reader.client.Get(server.URL + "/api/expenses/" + created.ID)
		if err != nil {
			panic(err)
		}
		resp.Body.Close()
		fmt.Println(reader.name+":", resp.StatusCode)
	}

	// Output:
	// alice: 200
	// bob: 404
}

func Example_logout() {
	server := setupTestServer(nil)
	defer server.Close()

	client := newClient()
	signupResp := postJSON(client, server.URL+"/api/user/signup", models.CredentialsRequest{
		Email:    "alice@example.com",
		Password: "correct horse",
	})
	signupResp.Body.Close()

	before, err := client.Get(server.URL + "/api/user")
	if err != nil {
		panic(err)
	}
	before.Body.Close()

	logout, err := client.Post(server.URL+"/api/user/logout", "application/json", nil)
	if err != nil {
		panic(err)
	}
	logout.Body.Close()

	after, err := client.Get(server.URL + "/api/user")
	if err != nil {
		panic(err)
	}
	after.Body.Close()

	fmt.Println("Before logout:", before.StatusCode)
	fmt.Println("Logout:", logout.StatusCode)
	fmt.Println("After logout:", after.StatusCode)

	// Output:
	// Before logout: 200
	// Logout: 204
	// After logout: 401
}

func TestExamplesServerStarts(t *testing.T) {
	server := setupTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
