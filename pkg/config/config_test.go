package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/config"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ahrsmon.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"net": {"listen_addr": "127.0.0.1:7000", "queue_size": 64},
		"imu": {"sample_rate": 200}
	}`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.Net.ListenAddr)
	require.Equal(t, 64, cfg.Net.QueueSize)
	require.Equal(t, 200.0, cfg.Imu.SampleRate)
	// Untouched sections come from defaults.
	require.Equal(t, 0.1, cfg.Timing.DtCeiling)
	require.Equal(t, uint32(4096), cfg.Replay.Window)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	mutations := map[string]func(*config.Config){
		"empty listen addr":     func(c *config.Config) { c.Net.ListenAddr = "" },
		"zero queue":            func(c *config.Config) { c.Net.QueueSize = 0 },
		"zero sample rate":      func(c *config.Config) { c.Imu.SampleRate = 0 },
		"zero tick rate":        func(c *config.Config) { c.Timing.TicksPerSecond = 0 },
		"zero ceiling":          func(c *config.Config) { c.Timing.DtCeiling = 0 },
		"zero window":           func(c *config.Config) { c.Replay.Window = 0 },
		"no auth key":           func(c *config.Config) { c.Keys.AuthKeyPath = "" },
		"encrypted without key": func(c *config.Config) { c.Net.Encrypted = true },
	}
	for name, mutate := range mutations {
		cfg := config.Default()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestLoadKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.key")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0o600))

	key, err := config.LoadKey(path, 32)
	require.NoError(t, err)
	require.Len(t, key, 32)

	_, err = config.LoadKey(path, 16)
	require.Error(t, err)

	_, err = config.LoadKey(filepath.Join(dir, "missing.key"), 32)
	require.Error(t, err)
}
