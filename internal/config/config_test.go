package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func fullEnv() map[string]string {
	return map[string]string{
		"SUPABASE_URL":      "https://demo.supabase.co",
		"SUPABASE_ANON_KEY": "anon",
		"EMAIL_USERNAME":    "bot@example.com",
		"EMAIL_PASSWORD":    "secret",
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, SourceRealtime, cfg.ChangeFeed.Source)
	assert.Equal(t, "teams", cfg.ChangeFeed.Table)
	assert.Equal(t, "public", cfg.ChangeFeed.Schema)
	assert.Equal(t, "send.one.com", cfg.Mail.Host)
	assert.Equal(t, 465, cfg.Mail.Port)
	assert.Equal(t, time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, ":8080", cfg.API.HTTP.Addr)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
logging:
  level: debug
dedupe:
  ttl: 90s
mail:
  port: 587
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 90*time.Second, cfg.Dedupe.TTL)
	assert.Equal(t, 587, cfg.Mail.Port)
	// untouched values keep defaults
	assert.Equal(t, "send.one.com", cfg.Mail.Host)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate_AllRequiredPresent(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envFrom(fullEnv()))

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://demo.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "bot@example.com", cfg.Mail.Username)
}

func TestValidate_MissingValues(t *testing.T) {
	testCases := []struct {
		name    string
		drop    string
		missing string
	}{
		{name: "supabase_url", drop: "SUPABASE_URL", missing: "SUPABASE_URL"},
		{name: "anon_key", drop: "SUPABASE_ANON_KEY", missing: "SUPABASE_ANON_KEY"},
		{name: "mail_username", drop: "EMAIL_USERNAME", missing: "EMAIL_USERNAME"},
		{name: "mail_password", drop: "EMAIL_PASSWORD", missing: "EMAIL_PASSWORD"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := fullEnv()
			delete(env, tc.drop)

			cfg := Default()
			cfg.ApplyEnv(envFrom(env))

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingConfig)
			assert.Contains(t, err.Error(), tc.missing)
		})
	}
}

func TestValidate_BlankEnvIsMissing(t *testing.T) {
	env := fullEnv()
	env["EMAIL_PASSWORD"] = "   "

	cfg := Default()
	cfg.ApplyEnv(envFrom(env))

	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestValidate_NATSSourceDoesNotNeedSupabase(t *testing.T) {
	cfg := Default()
	cfg.ChangeFeed.Source = SourceNATS
	cfg.ApplyEnv(envFrom(map[string]string{
		"NATS_URL":       "nats://localhost:4222",
		"EMAIL_USERNAME": "bot@example.com",
		"EMAIL_PASSWORD": "secret",
	}))

	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownValues(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envFrom(fullEnv()))
	cfg.Dedupe.Backend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ApplyEnv(envFrom(fullEnv()))
	cfg.ChangeFeed.Source = "kafka"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ClickHouseNeedsDSN(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envFrom(fullEnv()))
	cfg.Stores.ClickHouse.Enabled = true

	assert.ErrorIs(t, cfg.Validate(), ErrMissingConfig)
}
