// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"soukou/internal/analysis"
	"soukou/internal/decode"
	applog "soukou/internal/log"
	"soukou/internal/pitch"
	"soukou/internal/playback"
	"soukou/internal/record"
	"soukou/pkg/bitint"
)

// DefaultPath is the file LoadConfig looks for when no path is given.
const DefaultPath = "config.yaml"

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Streaming analysis settings.
	Pitch     PitchConfig     `yaml:"pitch"`     // Offline pitch analysis settings.
	Playback  PlaybackConfig  `yaml:"playback"`  // Audio output settings.
	Recording RecordingConfig `yaml:"recording"` // Recording tee settings.
	Transport TransportConfig `yaml:"transport"` // Frame delivery settings.
}

// AnalysisConfig holds the settings of the streaming pipeline.
type AnalysisConfig struct {
	WindowLength     int     `yaml:"window_length"`     // Samples per analysis window (power of two).
	Overlap          int     `yaml:"overlap"`           // Samples shared by consecutive windows.
	FFTWindow        string  `yaml:"fft_window"`        // Window function for the spectrum (e.g., "Hann", "Hamming").
	OnsetThreshold   float64 `yaml:"onset_threshold"`   // Per-bin rise in dB counted by the onset detector.
	OnsetSensitivity float64 `yaml:"onset_sensitivity"` // Onset sensitivity percentage.
	Realtime         bool    `yaml:"realtime"`          // Pace windows at wall-clock rate when not playing audio.
}

// PitchConfig holds the settings of the offline analyzer.
type PitchConfig struct {
	SampleRate   float64 `yaml:"sample_rate"`   // Sample rate assumed for raw sample input and tones.
	WindowLength int     `yaml:"window_length"` // Samples per detector window.
	Overlap      int     `yaml:"overlap"`       // Samples shared by consecutive windows.
	Algorithm    string  `yaml:"algorithm"`     // "yin" or "mpm".
}

// PlaybackConfig holds settings related to audio output.
type PlaybackConfig struct {
	Enabled      bool `yaml:"enabled"`       // Play the decoded audio while analysing.
	OutputDevice int  `yaml:"output_device"` // PortAudio device index for output (-1 for default).
}

// RecordingConfig holds settings related to the recording tee.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Write the decoded mono stream to a file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for recorded audio (16, 24 or 32).
}

// TransportConfig holds settings related to sending frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames and metrics over HTTP.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address of the websocket server.
	Bars             int           `yaml:"bars"`               // Spectrum bars per frame message.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Analysis: AnalysisConfig{
			WindowLength:     2048,
			Overlap:          1024,
			FFTWindow:        analysis.Hann.String(),
			OnsetThreshold:   analysis.DefaultOnsetThreshold,
			OnsetSensitivity: analysis.DefaultOnsetSensitivity,
			Realtime:         true,
		},
		Pitch: PitchConfig{
			SampleRate:   44100,
			WindowLength: 1024,
			Overlap:      0,
			Algorithm:    pitch.YIN.String(),
		},
		Playback: PlaybackConfig{
			Enabled:      false,
			OutputDevice: -1, // -1 for default device.
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  record.DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: "127.0.0.1:8080",
			Bars:             64,
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // Default ~30Hz.
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it looks for DefaultPath in the working directory and falls back
// to the built-in defaults when there is none. Environment variable overrides
// are applied last, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not recognised", c.LogLevel))
	}

	if err := decode.ValidateWindow(c.Analysis.WindowLength, c.Analysis.Overlap); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}
	if !bitint.IsPowerOfTwo(c.Analysis.WindowLength) {
		errs = append(errs, fmt.Errorf("analysis.window_length %d must be a power of 2 (try %d)",
			c.Analysis.WindowLength, bitint.NextPowerOfTwo(c.Analysis.WindowLength)))
	}
	if _, err := analysis.ParseWindowFunc(c.Analysis.FFTWindow); err != nil {
		errs = append(errs, fmt.Errorf("analysis.fft_window: %w", err))
	}
	if c.Analysis.OnsetThreshold <= 0 {
		errs = append(errs, errors.New("analysis.onset_threshold must be positive"))
	}
	if c.Analysis.OnsetSensitivity < 0 || c.Analysis.OnsetSensitivity > 100 {
		errs = append(errs, errors.New("analysis.onset_sensitivity must be within [0, 100]"))
	}

	if _, err := c.PitchConfig(); err != nil {
		errs = append(errs, fmt.Errorf("pitch: %w", err))
	}

	if c.Playback.OutputDevice < -1 {
		errs = append(errs, fmt.Errorf("playback.output_device %d is invalid", c.Playback.OutputDevice))
	}

	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			errs = append(errs, fmt.Errorf("recording.bit_depth %d is not supported", c.Recording.BitDepth))
		}
		if c.Recording.OutputDir == "" {
			errs = append(errs, errors.New("recording.output_dir must be set when recording is enabled"))
		}
	}

	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		errs = append(errs, errors.New("transport.websocket_address must be set when the websocket is enabled"))
	}
	if c.Transport.Bars <= 0 {
		errs = append(errs, errors.New("transport.bars must be positive"))
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			errs = append(errs, errors.New("transport.udp_target_address must be set when UDP is enabled"))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	return errors.Join(errs...)
}

// PitchConfig converts the pitch section into analyzer settings.
func (c *Config) PitchConfig() (pitch.Config, error) {
	alg, err := pitch.ParseAlgorithm(c.Pitch.Algorithm)
	if err != nil {
		return pitch.Config{}, err
	}
	pc := pitch.Config{
		SampleRate:   c.Pitch.SampleRate,
		WindowLength: c.Pitch.WindowLength,
		Overlap:      c.Pitch.Overlap,
		Algorithm:    alg,
	}
	return pc, pc.Validate()
}

// PlaybackConfig converts the analysis section into controller settings.
func (c *Config) PlaybackConfig() (playback.Config, error) {
	fn, err := analysis.ParseWindowFunc(c.Analysis.FFTWindow)
	if err != nil {
		return playback.Config{}, err
	}
	return playback.Config{
		WindowLength:     c.Analysis.WindowLength,
		Overlap:          c.Analysis.Overlap,
		FFTWindow:        fn,
		OnsetThreshold:   c.Analysis.OnsetThreshold,
		OnsetSensitivity: c.Analysis.OnsetSensitivity,
		Realtime:         c.Analysis.Realtime,
	}, nil
}

// applyEnvOverrides applies ENV_* variables on top of the file settings.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("Config: Overriding log_level from env: %s", val)
	}

	// ENV_WS_{...}
	// These are specific to the websocket server.
	overrideBool("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		applog.Debugf("Config: Overriding transport.websocket_address from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the UDP publisher.
	overrideBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Debugf("Config: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			applog.Warnf("Config: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}

	overrideBool("ENV_PLAYBACK_ENABLED", &c.Playback.Enabled)
	overrideBool("ENV_RECORDING_ENABLED", &c.Recording.Enabled)
}

func overrideBool(name string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = b
	applog.Debugf("Config: Overriding %s from env: %v", name, b)
}
