package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	t.Setenv("TRACKMASTER_ENV", Test)
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "trackmaster", cfg.AppName)
	assert.Equal(t, 1800, cfg.SessionTimeoutSeconds)
	assert.Equal(t, 30*time.Minute, cfg.GetSessionTimeout())
	assert.Equal(t, time.Minute, cfg.GetJobInterval())
	assert.Equal(t, 70, cfg.GetRateLimitPerMinute())
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, "storage/trackmaster-test.db", cfg.DatabaseDSN())
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
}

func TestGetConfigFromEnvironment(t *testing.T) {
	t.Setenv("TRACKMASTER_ENV", Development)
	t.Setenv("TRACKMASTER_SESSION_TIMEOUT_SECONDS", "600")
	t.Setenv("TRACKMASTER_JOB_INTERVAL_SECONDS", "15")
	t.Setenv("TRACKMASTER_RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("TRACKMASTER_STORAGE_PATH", "/tmp/tm")
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()

	assert.Equal(t, 10*time.Minute, cfg.GetSessionTimeout())
	assert.Equal(t, 15*time.Second, cfg.GetJobInterval())
	assert.Equal(t, 120, cfg.GetRateLimitPerMinute())
	assert.Equal(t, "/tmp/tm/trackmaster-development.db", cfg.GetDatabasePath())
	assert.Equal(t, 10, cfg.GetMaxOpenConns())
	assert.Equal(t, 5, cfg.GetMaxIdleConns())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:           Test,
			DatabaseType:          SQLiteDatabase,
			PrivateKey:            "k",
			SessionTimeoutSeconds: 1800,
			JobIntervalSeconds:    60,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad environment", mutate: func(c *Config) { c.Environment = "staging" }, wantErr: "invalid environment"},
		{name: "bad database", mutate: func(c *Config) { c.DatabaseType = "postgres" }, wantErr: "invalid database type"},
		{name: "empty key", mutate: func(c *Config) { c.PrivateKey = "" }, wantErr: "private key"},
		{name: "zero timeout", mutate: func(c *Config) { c.SessionTimeoutSeconds = 0 }, wantErr: "session timeout"},
		{name: "zero interval", mutate: func(c *Config) { c.JobIntervalSeconds = 0 }, wantErr: "job interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
