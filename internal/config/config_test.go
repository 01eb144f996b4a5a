package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
	assert.Equal(t, 10*time.Second, cfg.DBTimeout)
	assert.Equal(t, 30*time.Second, cfg.BlobTimeout)
	assert.Equal(t, 20*time.Second, cfg.CarrierTimeout)
	assert.Equal(t, "tracehub", cfg.StorageBucketPrefix)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "4")
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("POLL_INTERVAL_OVERRIDES", `{"in_transit":"30m","arrived":"15m"}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.PollIntervalOverrides["in_transit"])
	assert.Equal(t, 15*time.Minute, cfg.PollIntervalOverrides["arrived"])
}

func TestLoadRejectsBadPollOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL_OVERRIDES", `{"in_transit":"not-a-duration"}`)
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("POLL_INTERVAL_OVERRIDES", `{"in_transit":"-5m"}`)
	_, err = Load()
	assert.Error(t, err)
}

func TestWorkerPoolSizeFloor(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
}

func TestParsePollOverridesEmpty(t *testing.T) {
	m, err := parsePollOverrides("")
	require.NoError(t, err)
	assert.Empty(t, m)
}
