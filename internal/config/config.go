// Package config assembles the service configuration from, in increasing priority,
// built-in defaults, a JSON file, environment variables and command-line flags.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/thoas/go-funk"
)

// Config holds every tunable of the service.
type Config struct {
	RunAddr                 string        `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	GRPCAddr                string        `env:"GRPC_ADDRESS" json:"grpc_address" validate:"omitempty,hostname_port"`
	LogLevel                string        `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	DatabaseDSN             string        `env:"DATABASE_DSN" json:"database_dsn"`
	DBFileName              string        `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DBConnectionTimeout     time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout" validate:"gt=0"`
	SessionCookieName       string        `env:"SESSION_COOKIE_NAME" json:"session_cookie_name" validate:"required"`
	SessionSigningSecretKey string        `env:"SESSION_SECRET" json:"session_secret" validate:"required,base64url"`
	SessionTTL              time.Duration `env:"SESSION_TTL" json:"session_ttl" validate:"gte=1m"`
	SessionCookieSecure     bool          `env:"SESSION_COOKIE_SECURE" json:"session_cookie_secure"`
	TrustedSubnet           string        `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`
	RevocationPurgeInterval time.Duration `env:"REVOCATION_PURGE_INTERVAL" json:"revocation_purge_interval" validate:"gte=1s"`
	ConfigFile              string        `env:"CONFIG" json:"-"`
}

const minSessionSecretLength = 32

var defaultConfig = Config{
	RunAddr:                 ":8080",
	GRPCAddr:                ":3200",
	LogLevel:                "info",
	DBConnectionTimeout:     10 * time.Second,
	SessionCookieName:       "__session",
	SessionTTL:              30 * 24 * time.Hour,
	RevocationPurgeInterval: time.Hour,
}

var allowedLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing makes New ignore os.Args; tests use it.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// SessionSecret decodes the configured signing key.
func (c *Config) SessionSecret() ([]byte, error) {
	return base64.URLEncoding.DecodeString(c.SessionSigningSecretKey)
}

// New builds and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var flagValues *Config
	var setFlags map[string]bool
	if !options.disableFlagsParsing {
		var err error
		flagValues, setFlags, err = parseFlags(os.Args[1:])
		if err != nil {
			return nil, err
		}
	}

	configFile := os.Getenv("CONFIG")
	if setFlags["c"] {
		configFile = flagValues.ConfigFile
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if flagValues != nil {
		values.applyFlags(flagValues, setFlags)
	}

	if err := values.clarifySessionSecret(); err != nil {
		return nil, err
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

func parseFlags(args []string) (*Config, map[string]bool, error) {
	values := &Config{}
	applyDefaults(values, defaultConfig)

	flags := flag.NewFlagSet("beerich", flag.ContinueOnError)
	flags.StringVar(&values.RunAddr, "a", values.RunAddr, "address and port to run the HTTP server")
	flags.StringVar(&values.GRPCAddr, "g", values.GRPCAddr, "address and port to run the gRPC server")
	flags.StringVar(&values.LogLevel, "l", values.LogLevel, "logger level")
	flags.StringVar(&values.DatabaseDSN, "d", values.DatabaseDSN, "PostgreSQL connection string")
	flags.StringVar(&values.DBFileName, "f", values.DBFileName, "SQLite database file")
	flags.StringVar(&values.TrustedSubnet, "t", values.TrustedSubnet, "CIDR allowed to read internal stats")
	flags.StringVar(&values.ConfigFile, "c", values.ConfigFile, "JSON configuration file")
	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	set := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	return values, set, nil
}

func (c *Config) applyFlags(fromFlags *Config, set map[string]bool) {
	if set["a"] {
		c.RunAddr = fromFlags.RunAddr
	}
	if set["g"] {
		c.GRPCAddr = fromFlags.GRPCAddr
	}
	if set["l"] {
		c.LogLevel = fromFlags.LogLevel
	}
	if set["d"] {
		c.DatabaseDSN = fromFlags.DatabaseDSN
	}
	if set["f"] {
		c.DBFileName = fromFlags.DBFileName
	}
	if set["t"] {
		c.TrustedSubnet = fromFlags.TrustedSubnet
	}
	if set["c"] {
		c.ConfigFile = fromFlags.ConfigFile
	}
}

// clarifySessionSecret generates a throwaway key when none is configured.
// Sessions issued with it do not survive a restart.
func (c *Config) clarifySessionSecret() error {
	if c.SessionSigningSecretKey != "" {
		secret, err := c.SessionSecret()
		if err != nil {
			return fmt.Errorf("in internal/config/config.go/clarifySessionSecret(): SESSION_SECRET is not base64url: %w", err)
		}
		if len(secret) < minSessionSecretLength {
			return fmt.Errorf("SESSION_SECRET must decode to at least %d bytes", minSessionSecretLength)
		}
		return nil
	}

	secret := make([]byte, minSessionSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("in internal/config/config.go/clarifySessionSecret(): error while `rand.Read()` calling: %w", err)
	}
	c.SessionSigningSecretKey = base64.URLEncoding.EncodeToString(secret)
	log.Printf("SESSION_SECRET is not set, using a random key; sessions will not survive a restart")

	return nil
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(allowedLogLevels, fieldLevel.Field().String())
}

func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	if err := validate.RegisterValidation("filepath", validateFilePath); err != nil {
		return err
	}

	return validate.Struct(c)
}
