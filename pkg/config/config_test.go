package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rtckit/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_UsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load("non-existent-config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.WebRTC.RTX)
	assert.Equal(t, 100*time.Millisecond, cfg.WebRTC.JitterLatency)
}

func TestLoad_LoadsFromYAMLAndAppliesEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
signal:
  address: ":9001"
  ping_interval: 5s
  pong_timeout: 10s
  shutdown_timeout: 5s

webrtc:
  ice_servers:
    - urls: ["stun:stun.example.com:3478"]
  rtx: false
  jitter_latency: 200ms

ingest:
  address: ":6000"
  stats_period: 10s

logging:
  level: "debug"
  format: "json"
`)

	t.Setenv("RTCKIT_SIGNAL_ADDRESS", ":7001")
	t.Setenv("RTCKIT_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// YAML values
	assert.Equal(t, 5*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.Signal.PongTimeout)
	assert.False(t, cfg.WebRTC.RTX)
	assert.Equal(t, 200*time.Millisecond, cfg.WebRTC.JitterLatency)
	require.Len(t, cfg.WebRTC.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.WebRTC.ICEServers[0].URLs)
	assert.Equal(t, ":6000", cfg.Ingest.Address)

	// Env overrides
	assert.Equal(t, ":7001", cfg.Signal.Address)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
signal:
  address: ""
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyICEServerURLs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WebRTC.ICEServers = append(cfg.WebRTC.ICEServers, struct {
		URLs       []string `yaml:"urls"`
		Username   string   `yaml:"username,omitempty"`
		Credential string   `yaml:"credential,omitempty"`
	}{})

	assert.Error(t, cfg.Validate())
}

func TestValidate_RedisRequiresAddress(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = ""

	assert.Error(t, cfg.Validate())
}
