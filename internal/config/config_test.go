package config

import (
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

const testJSON = `{
	"server_address": ":3000",
	"grpc_address": ":3300",
	"file_storage_path": "json_storage.db",
	"database_dsn": "json-dsn",
	"session_cookie_name": "json_session",
	"session_cookie_secure": true
}`

func writeTempJSON(t *testing.T, content string) string {
	t.Helper()
	file, err := os.CreateTemp("", "config*.json")
	require.NoError(t, err)
	_, err = file.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	t.Cleanup(func() {
		err := os.Remove(file.Name())
		require.NoError(t, err)
	})
	return file.Name()
}

func TestDefaults(t *testing.T) {
	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.RunAddr)
	assert.Equal(t, ":3200", cfg.GRPCAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "__session", cfg.SessionCookieName)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.SessionCookieSecure)
}

func TestRandomSessionSecretWhenUnset(t *testing.T) {
	first, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)
	second, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	firstSecret, err := first.SessionSecret()
	require.NoError(t, err)
	assert.Len(t, firstSecret, minSessionSecretLength)
	assert.NotEqual(t, first.SessionSigningSecretKey, second.SessionSigningSecretKey)
}

func TestConfiguredSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	secret, err := cfg.SessionSecret()
	require.NoError(t, err)
	expected, err := base64.URLEncoding.DecodeString(testSecret)
	require.NoError(t, err)
	assert.Equal(t, expected, secret)
}

func TestShortSessionSecretRejected(t *testing.T) {
	t.Setenv("SESSION_SECRET", base64.URLEncoding.EncodeToString([]byte("too short")))

	_, err := New(WithDisableFlagsParsing(true))
	assert.Error(t, err)
}

func TestConfigPriorityJSONOnly(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.RunAddr)
	assert.Equal(t, ":3300", cfg.GRPCAddr)
	assert.Equal(t, "json_storage.db", cfg.DBFileName)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN)
	assert.Equal(t, "json_session", cfg.SessionCookieName)
	assert.True(t, cfg.SessionCookieSecure)
}

func TestConfigPriorityJSONPlusEnv(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("SESSION_COOKIE_SECURE", "false")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.RunAddr) // env overrides json
	assert.False(t, cfg.SessionCookieSecure)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigPriorityAllSources(t *testing.T) {
	jsonPath := writeTempJSON(t, testJSON)
	t.Setenv("CONFIG", jsonPath)
	t.Setenv("SERVER_ADDRESS", ":4000")
	t.Setenv("LOG_LEVEL", "warn")

	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{
		"testbin",
		"-a", ":6000",
		"-l", "debug",
	}

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.RunAddr) // CLI > ENV > JSON
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json-dsn", cfg.DatabaseDSN) // from JSON
}

func TestConfigEnvOnly(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("TRUSTED_SUBNET", "10.0.0.0/8")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedSubnet)
}

func TestInvalidValuesRejected(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "log level", key: "LOG_LEVEL", value: "chatty"},
		{name: "subnet", key: "TRUSTED_SUBNET", value: "not-a-cidr"},
		{name: "session ttl", key: "SESSION_TTL", value: "1s"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv(testCase.key, testCase.value)

			_, err := New(WithDisableFlagsParsing(true))
			assert.Error(t, err)
		})
	}
}
