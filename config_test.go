package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			port:           8080,
			maxPlayers:     8,
			maxScore:       10,
			hostGrace:      2 * time.Minute,
			sessionTimeout: 60 * time.Minute,
		}
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, valid().validate())
	})

	t.Run("tls cert and key must be paired", func(t *testing.T) {
		cfg := valid()
		cfg.tlsCert = "/tmp/cert.pem"
		assert.Error(t, cfg.validate())

		cfg.tlsKey = "/tmp/key.pem"
		assert.NoError(t, cfg.validate())
	})

	t.Run("port range", func(t *testing.T) {
		for _, port := range []int{0, -1, 65536} {
			cfg := valid()
			cfg.port = port
			assert.Error(t, cfg.validate())
		}

		cfg := valid()
		cfg.port = 65535
		assert.NoError(t, cfg.validate())
	})

	t.Run("limits", func(t *testing.T) {
		cfg := valid()
		cfg.maxPlayers = 0
		assert.Error(t, cfg.validate())

		cfg = valid()
		cfg.maxRooms = -1
		assert.Error(t, cfg.validate())

		cfg = valid()
		cfg.maxScore = 0
		assert.Error(t, cfg.validate())
	})

	t.Run("durations must be positive", func(t *testing.T) {
		for _, grace := range []time.Duration{0, -time.Second} {
			cfg := valid()
			cfg.hostGrace = grace
			assert.Error(t, cfg.validate())
		}

		for _, timeout := range []time.Duration{0, -time.Minute} {
			cfg := valid()
			cfg.sessionTimeout = timeout
			assert.Error(t, cfg.validate())
		}
	})
}

func TestConfigScheme(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert = "/tmp/cert.pem"
	cfg.tlsKey = "/tmp/key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestConfigFlags(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)

	require.NoError(t, cmd.ParseFlags([]string{
		"--port", "9090",
		"--max-players", "4",
		"--max-score", "5",
		"--host-grace", "30s",
		"--songs", "/tmp/songs.json",
	}))

	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, 4, cfg.maxPlayers)
	assert.Equal(t, 5, cfg.maxScore)
	assert.Equal(t, 30*time.Second, cfg.hostGrace)
	assert.Equal(t, "/tmp/songs.json", cfg.songs)

	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{}
		cmd := newCmd(cfg)
		require.NoError(t, cmd.ParseFlags(nil))

		assert.Equal(t, "0.0.0.0", cfg.bind)
		assert.Equal(t, 8080, cfg.port)
		assert.Equal(t, 8, cfg.maxPlayers)
		assert.Equal(t, 2*time.Minute, cfg.hostGrace)
		assert.Equal(t, 60*time.Minute, cfg.sessionTimeout)
	})
}
