// Package config loads and validates the voice terminal configuration
// from a YAML file. Defaults are applied before validation so a minimal
// file with just an identity is enough to run.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Identity names the local station.
type Identity struct {
	Callsign string `yaml:"callsign" validate:"required,max=255"`
	Name     string `yaml:"name" validate:"max=255"`
}

// Audio selects the local devices and the duplex policy.
type Audio struct {
	CaptureDevice  string `yaml:"capture_device"`
	PlaybackDevice string `yaml:"playback_device"`
	SampleRate     int    `yaml:"sample_rate" validate:"oneof=8000 16000 48000"`
	BlockSize      int    `yaml:"block_size" validate:"gt=0"`
	FullDuplex     bool   `yaml:"full_duplex"`
}

// Vox configures the voice-operated transmit detector.
type Vox struct {
	Enabled     bool `yaml:"enabled"`
	ThresholdDB int  `yaml:"threshold_db" validate:"gte=-60,lte=0"`
	DelayMs     int  `yaml:"delay_ms" validate:"gte=0,lte=3000"`
}

// Network configures the packet link to the peer.
type Network struct {
	ListenAddr string `yaml:"listen_addr"`
	PeerAddr   string `yaml:"peer_addr"`
	Encrypted  bool   `yaml:"encrypted"`
}

// Config is the whole configuration file.
type Config struct {
	Identity Identity `yaml:"identity" validate:"required"`
	Audio    Audio    `yaml:"audio"`
	Vox      Vox      `yaml:"vox"`
	Network  Network  `yaml:"network"`
}

// Default returns the configuration used when a field is absent from the
// file: 48 kHz devices, half duplex, VOX disabled at -30 dB with a
// one-second hang delay.
func Default() Config {
	return Config{
		Audio: Audio{
			SampleRate: 48000,
			BlockSize:  960,
		},
		Vox: Vox{
			Enabled:     false,
			ThresholdDB: -30,
			DelayMs:     1000,
		},
		Network: Network{
			ListenAddr: ":5198",
		},
	}
}

// Load reads, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Info("Loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration bytes. Defaults are
// filled in before the validator runs.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Parse",
			"error":    err.Error(),
		}).Error("Configuration decode failed")
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Parse",
			"error":    err.Error(),
		}).Error("Configuration validation failed")
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Parse",
		"callsign":    cfg.Identity.Callsign,
		"sample_rate": cfg.Audio.SampleRate,
		"full_duplex": cfg.Audio.FullDuplex,
		"vox_enabled": cfg.Vox.Enabled,
	}).Info("Configuration loaded")
	return &cfg, nil
}
