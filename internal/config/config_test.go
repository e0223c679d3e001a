package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1745, cfg.Server.Port)
	assert.Equal(t, "./saved-xsl", cfg.Stylesheets.Dir)
	assert.Equal(t, 300*time.Millisecond, cfg.Stylesheets.WatchDebounce)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.port", 9090)
	viper.Set("stylesheets.dir", "/var/lib/transformer/xsl")
	viper.Set("log.format", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/transformer/xsl", cfg.Stylesheets.Dir)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateRejectsBadPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.port", 700000)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("log.format", "xml")

	_, err := Load()
	require.Error(t, err)
}

func TestRedactedMasksAPIKeys(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{APIKeys: []string{"secret-1", "secret-2"}}}

	red := cfg.Redacted()
	assert.Equal(t, []string{"****", "****"}, red.Auth.APIKeys)
	assert.Equal(t, []string{"secret-1", "secret-2"}, cfg.Auth.APIKeys)
}

func TestAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 1745}
	assert.Equal(t, "127.0.0.1:1745", c.Addr())
}
