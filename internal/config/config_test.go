// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soukou/internal/analysis"
	"soukou/internal/pitch"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.WindowLength != 2048 || cfg.Analysis.Overlap != 1024 {
		t.Errorf("analysis window = %d/%d, want 2048/1024", cfg.Analysis.WindowLength, cfg.Analysis.Overlap)
	}
	if cfg.Pitch.WindowLength != 1024 || cfg.Pitch.Algorithm != "yin" {
		t.Errorf("pitch defaults = %+v", cfg.Pitch)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
analysis:
  window_length: 1024
  overlap: 512
  fft_window: Hamming
pitch:
  algorithm: mpm
transport:
  udp_enabled: true
  udp_send_interval: 10ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Analysis.WindowLength != 1024 || cfg.Analysis.Overlap != 512 {
		t.Errorf("analysis window = %d/%d, want 1024/512", cfg.Analysis.WindowLength, cfg.Analysis.Overlap)
	}
	if cfg.Transport.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("UDPSendInterval = %v, want 10ms", cfg.Transport.UDPSendInterval)
	}
	// Fields missing from the file keep their defaults.
	if cfg.Transport.UDPTargetAddress != "127.0.0.1:9090" {
		t.Errorf("UDPTargetAddress = %q, want default", cfg.Transport.UDPTargetAddress)
	}

	pc, err := cfg.PlaybackConfig()
	if err != nil {
		t.Fatalf("PlaybackConfig error: %v", err)
	}
	if pc.FFTWindow != analysis.Hamming || pc.WindowLength != 1024 {
		t.Errorf("PlaybackConfig = %+v", pc)
	}

	pitchCfg, err := cfg.PitchConfig()
	if err != nil {
		t.Fatalf("PitchConfig error: %v", err)
	}
	if pitchCfg.Algorithm != pitch.McLeod {
		t.Errorf("Algorithm = %v, want mpm", pitchCfg.Algorithm)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "50ms")
	t.Setenv("ENV_WS_ENABLED", "1")
	t.Setenv("ENV_PLAYBACK_ENABLED", "not-a-bool")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:7000" {
		t.Errorf("UDP overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("UDPSendInterval = %v, want 50ms", cfg.Transport.UDPSendInterval)
	}
	if !cfg.Transport.WebSocketEnabled {
		t.Error("ENV_WS_ENABLED not applied")
	}
	if cfg.Playback.Enabled {
		t.Error("invalid ENV_PLAYBACK_ENABLED should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Defaults", func(*Config) {}, ""},
		{"Bad log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"Overlap too large", func(c *Config) { c.Analysis.Overlap = 2048 }, "analysis"},
		{"Window not power of two", func(c *Config) { c.Analysis.WindowLength = 1000; c.Analysis.Overlap = 0 }, "power of 2"},
		{"Unknown FFT window", func(c *Config) { c.Analysis.FFTWindow = "Triangle" }, "fft_window"},
		{"Zero threshold", func(c *Config) { c.Analysis.OnsetThreshold = 0 }, "onset_threshold"},
		{"Sensitivity out of range", func(c *Config) { c.Analysis.OnsetSensitivity = 120 }, "onset_sensitivity"},
		{"Unknown pitch algorithm", func(c *Config) { c.Pitch.Algorithm = "autocorr" }, "pitch"},
		{"Zero pitch rate", func(c *Config) { c.Pitch.SampleRate = 0 }, "pitch"},
		{"Bad output device", func(c *Config) { c.Playback.OutputDevice = -5 }, "output_device"},
		{"Bad bit depth", func(c *Config) { c.Recording.Enabled = true; c.Recording.BitDepth = 12 }, "bit_depth"},
		{"Bit depth ignored when disabled", func(c *Config) { c.Recording.BitDepth = 12 }, ""},
		{"UDP without interval", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPSendInterval = 0 }, "udp_send_interval"},
		{"No bars", func(c *Config) { c.Transport.Bars = 0 }, "bars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "chatty"
	cfg.Transport.Bars = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "transport.bars"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
