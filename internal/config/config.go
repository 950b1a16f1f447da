// Package config reads ballot settings from the environment and optional
// .env files. Flags set by the CLI override the loaded values before
// Validate runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvMode            = "BALLOT_ENV"
	EnvAPIURL          = "BALLOT_API_URL"
	EnvVoterStatusPath = "BALLOT_VOTER_STATUS_PATH"
	EnvHTTPTimeout     = "BALLOT_HTTP_TIMEOUT"
	EnvRatePerSec      = "BALLOT_RATE_PER_SEC"
	EnvRateBurst       = "BALLOT_RATE_BURST"
	EnvStoreDriver     = "BALLOT_STORE_DRIVER"
	EnvStore           = "BALLOT_STORE"
	EnvStorePassphrase = "BALLOT_STORE_PASSPHRASE"
	EnvPasscodeHash    = "BALLOT_PASSCODE_HASH"
	EnvBiometric       = "BALLOT_BIOMETRIC"
	EnvMetricsFile     = "BALLOT_METRICS_FILE"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
	DriverMemory = "memory"
)

// Biometric gate kinds.
const (
	GatePasscode = "passcode"
	GateNone     = "none"
)

const (
	defaultAPIURL          = "http://localhost:8000/api"
	defaultVoterStatusPath = "/auth/voter/status"
	defaultHTTPTimeout     = 15 * time.Second
	defaultRatePerSec      = 5
	defaultRateBurst       = 10
)

// Config is the full runtime configuration of the ballot CLI.
type Config struct {
	Env             string
	APIURL          string
	VoterStatusPath string
	HTTPTimeout     time.Duration
	RatePerSec      float64
	RateBurst       int
	StoreDriver     string
	Store           string
	StorePassphrase string
	PasscodeHash    string
	Biometric       string
	MetricsFile     string
}

// Environment returns a lookup over the process environment. Outside
// production, values missing from the environment fall back to the given
// dotenv files (".env" when none are named). Missing files are skipped.
func Environment(files ...string) (func(string) string, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(EnvMode)), "production") {
		return os.Getenv, nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		for k, v := range values {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return merged[key]
	}, nil
}

// Load builds a Config from getenv, filling defaults. It does not validate.
func Load(getenv func(string) string) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		Env:             get(EnvMode),
		APIURL:          get(EnvAPIURL),
		VoterStatusPath: get(EnvVoterStatusPath),
		HTTPTimeout:     defaultHTTPTimeout,
		RatePerSec:      defaultRatePerSec,
		RateBurst:       defaultRateBurst,
		StoreDriver:     strings.ToLower(get(EnvStoreDriver)),
		Store:           get(EnvStore),
		StorePassphrase: getenv(EnvStorePassphrase),
		PasscodeHash:    get(EnvPasscodeHash),
		Biometric:       strings.ToLower(get(EnvBiometric)),
		MetricsFile:     get(EnvMetricsFile),
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.VoterStatusPath == "" {
		cfg.VoterStatusPath = defaultVoterStatusPath
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverFile
	}
	if cfg.Biometric == "" {
		cfg.Biometric = GatePasscode
	}

	if v := get(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s: %w", EnvHTTPTimeout, err)
		}
		cfg.HTTPTimeout = d
	}
	if v := get(EnvRatePerSec); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s: %w", EnvRatePerSec, err)
		}
		cfg.RatePerSec = f
	}
	if v := get(EnvRateBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s: %w", EnvRateBurst, err)
		}
		cfg.RateBurst = n
	}

	if cfg.Store == "" {
		cfg.Store = DefaultStore(cfg.StoreDriver)
	}
	return cfg, nil
}

// DefaultStore is the store location used when none is configured. pgx has
// no default DSN.
func DefaultStore(driver string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch driver {
	case DriverFile:
		return filepath.Join(home, ".ballotkey", "credentials.json")
	case DriverSQLite:
		return filepath.Join(home, ".ballotkey", "credentials.db")
	default:
		return ""
	}
}

// Production reports whether the config targets a production deployment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Encrypted reports whether the store driver seals values with a passphrase.
func (c Config) Encrypted() bool {
	return c.StoreDriver != DriverMemory
}

// Validate rejects configurations the binary cannot run with.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", EnvAPIURL, c.APIURL))
	} else if c.Production() && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("%s must use https in production", EnvAPIURL))
	}
	if !strings.HasPrefix(c.VoterStatusPath, "/") {
		errs = append(errs, fmt.Errorf("%s must start with /", EnvVoterStatusPath))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvHTTPTimeout))
	}
	if c.RatePerSec <= 0 || c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("%s and %s must be positive", EnvRatePerSec, EnvRateBurst))
	}

	switch c.StoreDriver {
	case DriverFile, DriverSQLite, DriverPgx:
		if c.Store == "" {
			errs = append(errs, fmt.Errorf("%s is required for driver %s", EnvStore, c.StoreDriver))
		}
		if c.StorePassphrase == "" {
			errs = append(errs, fmt.Errorf("%s is required for driver %s", EnvStorePassphrase, c.StoreDriver))
		}
	case DriverMemory:
		if c.Production() {
			errs = append(errs, fmt.Errorf("%s=memory is not allowed in production", EnvStoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown driver %q", EnvStoreDriver, c.StoreDriver))
	}

	switch c.Biometric {
	case GatePasscode, GateNone:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown gate %q", EnvBiometric, c.Biometric))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
