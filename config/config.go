// Package config loads hydrolink's session parameters, following the
// teacher's standalone/config pattern of JSON-plus-defaults (LoadConfig /
// applyDefaults) but layering environment variables on top via
// github.com/sethvargo/go-envconfig, since a field-deployed acoustic
// modem session is more often configured by environment than by a JSON
// file sitting next to it.
package config

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config holds every recognized hydrolink option (spec §6).
type Config struct {
	MaxPayload int     `json:"max_payload" env:"MAX_PAYLOAD"`
	Timeout    float64 `json:"timeout" env:"ARQ_TIMEOUT"`
	Window     int     `json:"window" env:"ARQ_WINDOW"`
	MaxRetries int     `json:"max_retries" env:"ARQ_MAX_RETRIES"`

	DropData    float64 `json:"drop_data" env:"ARQ_DROP_DATA"`
	DropAck     float64 `json:"drop_ack" env:"ARQ_DROP_ACK"`
	CorruptData float64 `json:"corrupt_data" env:"ARQ_CORRUPT_DATA"`
	CorruptAck  float64 `json:"corrupt_ack" env:"ARQ_CORRUPT_ACK"`
	Latency     float64 `json:"latency" env:"ARQ_LATENCY"`

	// ReassemblyIdle bounds how long a partially-assembled message may sit
	// without a new fragment before the receiver drops its session state
	// (spec §9, Open Question: garbage-collect abandoned msg_id).
	ReassemblyIdle float64 `json:"reassembly_idle" env:"ARQ_REASSEMBLY_IDLE"`
}

// Load parses jsonData (may be nil/empty) into a Config, then fills any
// zero-valued field from the environment, then applies defaults. JSON
// values always win over environment values, matching the teacher's
// "explicit config wins, defaults fill gaps" precedence.
//
// envconfig.Process overwrites every field whose environment variable is
// set, with no notion of "already populated from JSON" — so env is
// processed into a separate Config and only used to fill fields JSON left
// zero-valued, rather than processed directly into cfg.
func Load(ctx context.Context, jsonData []byte) (*Config, error) {
	var cfg Config
	if len(jsonData) > 0 {
		if err := json.Unmarshal(jsonData, &cfg); err != nil {
			return nil, errors.Wrap(err, "config: parse json")
		}
	}

	var envCfg Config
	if err := envconfig.Process(ctx, &envCfg); err != nil {
		return nil, errors.Wrap(err, "config: read environment")
	}
	cfg.fillFromEnv(&envCfg)

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillFromEnv copies any field env set where cfg's own JSON-populated
// value is still zero, so JSON always wins and env only fills gaps.
func (c *Config) fillFromEnv(env *Config) {
	if c.MaxPayload == 0 {
		c.MaxPayload = env.MaxPayload
	}
	if c.Timeout == 0 {
		c.Timeout = env.Timeout
	}
	if c.Window == 0 {
		c.Window = env.Window
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = env.MaxRetries
	}
	if c.DropData == 0 {
		c.DropData = env.DropData
	}
	if c.DropAck == 0 {
		c.DropAck = env.DropAck
	}
	if c.CorruptData == 0 {
		c.CorruptData = env.CorruptData
	}
	if c.CorruptAck == 0 {
		c.CorruptAck = env.CorruptAck
	}
	if c.Latency == 0 {
		c.Latency = env.Latency
	}
	if c.ReassemblyIdle == 0 {
		c.ReassemblyIdle = env.ReassemblyIdle
	}
}

func (c *Config) applyDefaults() {
	if c.MaxPayload == 0 {
		c.MaxPayload = 32
	}
	if c.Timeout == 0 {
		c.Timeout = 0.2
	}
	if c.Window == 0 {
		c.Window = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 20
	}
	if c.ReassemblyIdle == 0 {
		c.ReassemblyIdle = 5
	}
}

// Validate enforces the ranges spec §6 recognizes as valid configuration.
func (c *Config) Validate() error {
	if c.MaxPayload < 1 || c.MaxPayload > 250 {
		return errors.Errorf("config: max_payload %d out of range [1,250]", c.MaxPayload)
	}
	if c.Window < 1 || c.Window > 127 {
		return errors.Errorf("config: window %d out of range [1,127]", c.Window)
	}
	for name, p := range map[string]float64{
		"drop_data": c.DropData, "drop_ack": c.DropAck,
		"corrupt_data": c.CorruptData, "corrupt_ack": c.CorruptAck,
	} {
		if p < 0 || p > 1 {
			return errors.Errorf("config: %s %f out of range [0,1]", name, p)
		}
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("config: max_retries must be non-negative")
	}
	return nil
}
