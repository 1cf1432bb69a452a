// Package config provides library-level defaults (buffer sizing,
// default sample rate, log level) via viper, the same way the source
// project loads process-wide defaults before any device-level config
// override takes effect.
package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/quietfield/pcmio/pkg/pcm"
)

// SetDefaults installs this library's process-wide viper defaults.
// Call once before Context.NewDefault if an application wants to
// override any of these via its own config file or environment
// variables (viper's usual precedence rules apply).
func SetDefaults() {
	viper.SetDefault("audio.loglevel", "info")
	viper.SetDefault("audio.default_sample_rate", 48000)
	viper.SetDefault("audio.default_buffer_ms", 25)
	viper.SetDefault("audio.default_period_count", 2)
	viper.SetDefault("audio.cache_size_in_frames", 512)
}

// LoadFile merges an optional config file over the defaults. A missing
// file is not an error; a malformed one is.
func LoadFile(path string) error {
	SetDefaults()
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no audio config file found, using defaults", "path", path)
			return nil
		}
		return err
	}
	return nil
}

// DefaultSampleRate returns the configured default sample rate, used
// when a caller builds a DeviceConfig without specifying one.
func DefaultSampleRate() int { return viper.GetInt("audio.default_sample_rate") }

// DefaultBufferMilliseconds returns the configured default buffer
// duration, matching the 25ms default §3 specifies unless overridden.
func DefaultBufferMilliseconds() int { return viper.GetInt("audio.default_buffer_ms") }

// DefaultPeriodCount returns the configured default period count.
func DefaultPeriodCount() int { return viper.GetInt("audio.default_period_count") }

// CacheSizeInFrames returns the configured SRC cache capacity, capped
// by pcm.MaxCacheFrames regardless of what a config file requests.
func CacheSizeInFrames() int {
	n := viper.GetInt("audio.cache_size_in_frames")
	if n > pcm.MaxCacheFrames {
		n = pcm.MaxCacheFrames
	}
	return n
}

// LogLevel returns the configured slog level string ("debug", "info",
// "warn", "error").
func LogLevel() string { return viper.GetString("audio.loglevel") }
