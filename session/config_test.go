package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeller/kademlia/p2p/discover"
	"github.com/dkeller/kademlia/session"
)

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()
	assert.Equal(t, discover.DefaultPort, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.BootstrapPeers)
}

func TestConfig_LoadConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	body := "Port = 30303\nBootstrapPeers = [\"aabb@127.0.0.1:30304\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := session.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30303, cfg.Port)
	assert.Equal(t, []string{"aabb@127.0.0.1:30304"}, cfg.BootstrapPeers)
	assert.Equal(t, "info", cfg.LogLevel, "unset fields keep their default")
}

func TestConfig_LoadConfigMissingFile(t *testing.T) {
	_, err := session.LoadConfig("/nonexistent/path/node.toml")
	assert.Error(t, err)
}
