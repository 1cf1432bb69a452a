package audio

import (
	"github.com/quietfield/pcmio/pkg/pcm"
)

// ConfigFlags records which DeviceConfig fields were left at their zero
// value and were therefore defaulted by NewDeviceConfig. The flags are
// not passed on to backends: backend.DeviceSpec has no flags field, and
// DirectSound and OpenAL cap periods at 4 whether or not the period
// count was defaulted.
type ConfigFlags uint32

const (
	FlagDefaultBufferSize ConfigFlags = 1 << iota
	FlagDefaultPeriods
)

// DataNeededFunc is the playback callback: it writes up to frameCount
// interleaved frames (device's application-facing format/channels) into
// out and returns the number of frames actually written. Shortfalls are
// zero-filled by the library, not by the callback.
type DataNeededFunc func(dev *Device, frameCount int, out []byte) int

// DataAvailableFunc is the capture callback, delivered in chunks up to
// 4 KiB of samples.
type DataAvailableFunc func(dev *Device, frameCount int, in []byte)

// StoppedFunc is invoked exactly once per Started->Stopped transition
// that was not part of initial setup, from the worker thread, after
// state = Stopped has been published.
type StoppedFunc func(dev *Device)

// LogFunc receives one UTF-8 line per log message, formatted by devlog
// as "[LEVEL] [BACKEND] message".
type LogFunc func(dev *Device, message string)

// DeviceConfig is the immutable request a caller hands to
// Context.InitDevice. Zero buffer size / period count are replaced with
// documented defaults; ConfigFlags records which ones were defaulted.
type DeviceConfig struct {
	Type       DeviceType
	Format     pcm.Format
	Channels   int
	SampleRate int
	ChannelMap pcm.ChannelMap

	BufferSizeInFrames int
	PeriodCount        int
	Flags              ConfigFlags

	DataNeeded    DataNeededFunc
	DataAvailable DataAvailableFunc
	Stopped       StoppedFunc
	Log           LogFunc
}

// NewDeviceConfig fills in the required defaults (§3): buffer size in
// frames defaults to 25ms worth of frames at the requested sample rate,
// period count defaults to 2, and the channel map defaults to the
// canonical layout for the requested channel count if the caller left
// it empty.
func NewDeviceConfig(t DeviceType, format pcm.Format, channels, sampleRate int) DeviceConfig {
	cfg := DeviceConfig{
		Type:       t,
		Format:     format,
		Channels:   channels,
		SampleRate: sampleRate,
		ChannelMap: pcm.DefaultChannelMap(channels),
	}
	cfg.applyDefaults()
	return cfg
}

func (cfg *DeviceConfig) applyDefaults() {
	if cfg.BufferSizeInFrames == 0 {
		cfg.BufferSizeInFrames = cfg.SampleRate / 1000 * 25
		cfg.Flags |= FlagDefaultBufferSize
	}
	if cfg.PeriodCount == 0 {
		cfg.PeriodCount = 2
		cfg.Flags |= FlagDefaultPeriods
	}
	if len(cfg.ChannelMap) == 0 {
		cfg.ChannelMap = pcm.DefaultChannelMap(cfg.Channels)
	}
}

// Validate checks the invariants NewDeviceConfig alone cannot guarantee
// when a caller builds a DeviceConfig by hand instead of through
// NewDeviceConfig.
func (cfg DeviceConfig) Validate() error {
	if !cfg.Format.IsValid() {
		return ResultInvalidDeviceConfig
	}
	if cfg.Channels < 1 || cfg.Channels > pcm.MaxChannels {
		return ResultInvalidDeviceConfig
	}
	if cfg.SampleRate <= 0 {
		return ResultInvalidDeviceConfig
	}
	if !cfg.ChannelMap.IsValid(cfg.Channels) {
		return ResultInvalidDeviceConfig
	}
	if cfg.BufferSizeInFrames < cfg.PeriodCount || cfg.PeriodCount < 1 {
		return ResultInvalidDeviceConfig
	}
	return nil
}
