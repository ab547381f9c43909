// Package config loads the daemon configuration and key material.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultConfigPath is where ahrsmond looks when --config is not given.
const DefaultConfigPath = "configs/ahrsmon.json"

// Config is the full daemon configuration. Zero values are filled from
// Default before validation, so a partial file is fine.
type Config struct {
	Net    NetConfig    `json:"net"`
	Imu    ImuConfig    `json:"imu"`
	Timing TimingConfig `json:"timing"`
	Replay ReplayConfig `json:"replay"`
	Keys   KeysConfig   `json:"keys"`
}

// NetConfig configures the UDP receive path.
type NetConfig struct {
	ListenAddr string `json:"listen_addr"`
	// Encrypted selects the ChaCha20-Poly1305 datagram envelope and
	// requires an envelope key.
	Encrypted bool `json:"encrypted"`
	// QueueSize bounds the datagram queue between receive and processing.
	QueueSize int `json:"queue_size"`
}

// ImuConfig describes the sensor stream.
type ImuConfig struct {
	// SampleRate in Hz; 1/SampleRate seeds dt for a source's first frame.
	SampleRate float64 `json:"sample_rate"`
}

// TimingConfig parameterizes delta extraction.
type TimingConfig struct {
	TicksPerSecond    float64 `json:"ticks_per_second"`
	RolloverThreshold uint64  `json:"rollover_threshold"`
	// DtCeiling in seconds; larger deltas are clamped and reported.
	DtCeiling float64 `json:"dt_ceiling"`
}

// ReplayConfig parameterizes the replay guard.
type ReplayConfig struct {
	Window uint32 `json:"window"`
}

// KeysConfig points at externally provisioned key files.
type KeysConfig struct {
	AuthKeyPath     string `json:"auth_key_path"`
	EnvelopeKeyPath string `json:"envelope_key_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Net: NetConfig{
			ListenAddr: "0.0.0.0:9901",
			QueueSize:  256,
		},
		Imu: ImuConfig{
			SampleRate: 100,
		},
		Timing: TimingConfig{
			TicksPerSecond:    1_000_000,
			RolloverThreshold: 1 << 63,
			DtCeiling:         0.1,
		},
		Replay: ReplayConfig{
			Window: 4096,
		},
		Keys: KeysConfig{
			AuthKeyPath: "configs/secrets/auth.key",
		},
	}
}

// Load reads a JSON config file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Net.ListenAddr == "" {
		return fmt.Errorf("config: net.listen_addr is required")
	}
	if c.Net.QueueSize <= 0 {
		return fmt.Errorf("config: net.queue_size must be positive, got %d", c.Net.QueueSize)
	}
	if c.Imu.SampleRate <= 0 {
		return fmt.Errorf("config: imu.sample_rate must be positive, got %g", c.Imu.SampleRate)
	}
	if c.Timing.TicksPerSecond <= 0 {
		return fmt.Errorf("config: timing.ticks_per_second must be positive, got %g", c.Timing.TicksPerSecond)
	}
	if c.Timing.DtCeiling <= 0 {
		return fmt.Errorf("config: timing.dt_ceiling must be positive, got %g", c.Timing.DtCeiling)
	}
	if c.Replay.Window == 0 {
		return fmt.Errorf("config: replay.window must be positive")
	}
	if c.Keys.AuthKeyPath == "" {
		return fmt.Errorf("config: keys.auth_key_path is required")
	}
	if c.Net.Encrypted && c.Keys.EnvelopeKeyPath == "" {
		return fmt.Errorf("config: net.encrypted requires keys.envelope_key_path")
	}
	return nil
}

// LoadKey reads a key file and checks its exact size.
func LoadKey(path string, size int) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	if len(key) != size {
		return nil, fmt.Errorf("key %s: %d bytes, want %d", path, len(key), size)
	}
	return key, nil
}
