package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(mapEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.APIURL)
	assert.Equal(t, "/auth/voter/status", cfg.VoterStatusPath)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5.0, cfg.RatePerSec)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, DriverFile, cfg.StoreDriver)
	assert.Equal(t, GatePasscode, cfg.Biometric)
	assert.Equal(t, "credentials.json", filepath.Base(cfg.Store))
	assert.Equal(t, ".ballotkey", filepath.Base(filepath.Dir(cfg.Store)))
	assert.False(t, cfg.Production())

	// The passphrase is the only missing piece.
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvStorePassphrase)
}

func TestLoadFromEnv(t *testing.T) {
	cfg, err := Load(mapEnv(map[string]string{
		EnvAPIURL:          " https://vote.example/api ",
		EnvVoterStatusPath: "/voter/status",
		EnvHTTPTimeout:     "3s",
		EnvRatePerSec:      "0.5",
		EnvRateBurst:       "2",
		EnvStoreDriver:     "SQLite",
		EnvStorePassphrase: "pass phrase ",
		EnvBiometric:       "none",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://vote.example/api", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 0.5, cfg.RatePerSec)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "credentials.db", filepath.Base(cfg.Store))
	assert.Equal(t, "pass phrase ", cfg.StorePassphrase, "passphrase is used verbatim")
	assert.Equal(t, GateNone, cfg.Biometric)
}

func TestLoadRejectsUnparsable(t *testing.T) {
	for _, key := range []string{EnvHTTPTimeout, EnvRatePerSec, EnvRateBurst} {
		_, err := Load(mapEnv(map[string]string{key: "lots"}))
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Env:             "development",
		APIURL:          "http://localhost:8000/api",
		VoterStatusPath: "/auth/voter/status",
		HTTPTimeout:     time.Second,
		RatePerSec:      1,
		RateBurst:       1,
		StoreDriver:     DriverFile,
		Store:           "/tmp/c.json",
		StorePassphrase: "pw",
		Biometric:       GatePasscode,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"bad url":        func(c *Config) { c.APIURL = "localhost:8000" },
		"http in prod":   func(c *Config) { c.Env = "production" },
		"relative path":  func(c *Config) { c.VoterStatusPath = "voter/status" },
		"zero timeout":   func(c *Config) { c.HTTPTimeout = 0 },
		"zero burst":     func(c *Config) { c.RateBurst = 0 },
		"unknown driver": func(c *Config) { c.StoreDriver = "redis" },
		"no passphrase":  func(c *Config) { c.StorePassphrase = "" },
		"unknown gate":   func(c *Config) { c.Biometric = "retina" },
		"pgx without dsn": func(c *Config) {
			c.StoreDriver = DriverPgx
			c.Store = ""
		},
		"memory in prod": func(c *Config) {
			c.APIURL = "https://vote.example/api"
			c.Env = "production"
			c.StoreDriver = DriverMemory
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	mem := valid
	mem.StoreDriver = DriverMemory
	mem.StorePassphrase = ""
	assert.NoError(t, mem.Validate())
	assert.False(t, mem.Encrypted())
}

func TestEnvironmentMergesDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BALLOT_API_URL=https://from-file/api\nBALLOT_RATE_BURST=3\n"), 0o600))

	t.Setenv(EnvMode, "development")
	t.Setenv(EnvRateBurst, "7")
	t.Setenv(EnvAPIURL, "")
	require.NoError(t, os.Unsetenv(EnvAPIURL))

	getenv, err := Environment(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "https://from-file/api", getenv(EnvAPIURL))
	assert.Equal(t, "7", getenv(EnvRateBurst), "process environment wins")

	t.Setenv(EnvMode, "production")
	getenv, err = Environment(path)
	require.NoError(t, err)
	assert.Empty(t, getenv(EnvAPIURL), "dotenv ignored in production")
}
