package audio_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/null"
	"github.com/quietfield/pcmio/pkg/audio"
	"github.com/quietfield/pcmio/pkg/pcm"
)

func newNullContext(t *testing.T) *audio.Context {
	t.Helper()
	ctx, err := audio.New([]backend.Backend{null.New(nil)}, nil)
	require.NoError(t, err)
	require.Equal(t, backend.Null, ctx.BackendID())
	return ctx
}

// TestDeviceInitAndUninit covers §8 scenario 1: a device negotiated at
// 48kHz/25ms against the null backend settles on buffer_size_in_frames
// = 1200 with 2 periods, and Uninit tears down cleanly.
func TestDeviceInitAndUninit(t *testing.T) {
	ctx := newNullContext(t)
	cfg := audio.NewDeviceConfig(audio.Playback, pcm.FormatF32, 2, 48000)

	dev, err := ctx.InitDevice(cfg)
	require.NoError(t, err)

	negotiated := dev.Negotiated()
	require.Equal(t, 1200, negotiated.BufferSizeInFrames)
	require.Equal(t, 2, negotiated.PeriodCount)

	require.NoError(t, dev.Uninit())
	require.NoError(t, ctx.Uninit())
}

// TestDevicePlaybackPreRoll covers §8 scenario 2: Start pre-rolls a full
// buffer via the data-needed callback before returning, and the device
// is observably Started with the callback having delivered a cumulative
// frame count of at least one buffer's worth (1200 frames at 48kHz/25ms,
// well past the scenario's 4410-frame floor once the main loop has run a
// little).
func TestDevicePlaybackPreRoll(t *testing.T) {
	ctx := newNullContext(t)
	cfg := audio.NewDeviceConfig(audio.Playback, pcm.FormatF32, 1, 48000)

	var delivered int64
	cfg.DataNeeded = func(dev *audio.Device, frameCount int, out []byte) int {
		for i := range out[:frameCount*4] {
			out[i] = 0
		}
		atomic.AddInt64(&delivered, int64(frameCount))
		return frameCount
	}

	dev, err := ctx.InitDevice(cfg)
	require.NoError(t, err)
	defer dev.Uninit()

	require.NoError(t, dev.Start())
	// Start blocks until the worker has pre-rolled at least one buffer,
	// so the pre-roll's contribution alone already clears the buffer size.
	require.GreaterOrEqual(t, atomic.LoadInt64(&delivered), int64(1200))

	// Each null-backend period is 12.5ms (1200 frames / 2 periods at
	// 48kHz), so 150ms comfortably clears several more periods on top of
	// the pre-roll, well past the scenario's 4410-frame floor.
	time.Sleep(150 * time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt64(&delivered), int64(4410))

	require.NoError(t, dev.Stop())
}

// TestDeviceUnderflowZeroFills covers §8 scenario 3: when the callback
// returns fewer frames than requested, the shortfall is zero-filled by
// the library rather than left with stale scratch contents. The
// device's pre-roll (dev_start) makes exactly one such call, synchronously,
// before Start() returns, so the buffer it wrote into can be inspected
// immediately afterward with no race against the worker's main loop
// (which pulls into a separate buffer of its own).
func TestDeviceUnderflowZeroFills(t *testing.T) {
	ctx := newNullContext(t)
	cfg := audio.NewDeviceConfig(audio.Playback, pcm.FormatF32, 1, 48000)

	var captured bool
	var lastN int
	var preRollBuf []byte // same backing array pullFromApp zero-fills after this callback returns

	cfg.DataNeeded = func(dev *audio.Device, frameCount int, out []byte) int {
		if captured {
			return frameCount // let later main-loop pulls through untouched
		}
		captured = true
		lastN = frameCount
		preRollBuf = out
		half := frameCount / 2
		for i := range out[:half*4] {
			out[i] = 0xAB
		}
		for i := half * 4; i < frameCount*4; i++ {
			out[i] = 0xCD // stale contents the library must overwrite
		}
		return half
	}

	dev, err := ctx.InitDevice(cfg)
	require.NoError(t, err)
	defer dev.Uninit()

	// Start blocks until dev_start's pre-roll pull (and its zero-fill of
	// the shortfall) has completed, so preRollBuf already reflects it.
	require.NoError(t, dev.Start())
	require.True(t, captured)

	half := lastN / 2
	for i := half * 4; i < lastN*4; i++ {
		require.Equalf(t, byte(0), preRollBuf[i], "byte %d of shortfall region should be zero-filled", i)
	}

	require.NoError(t, dev.Stop())
}

func TestDeviceStoppedCallbackFiresOncePerCycle(t *testing.T) {
	ctx := newNullContext(t)
	cfg := audio.NewDeviceConfig(audio.Capture, pcm.FormatF32, 1, 48000)

	var stoppedCount int64
	stoppedCh := make(chan struct{}, 1)
	cfg.Stopped = func(dev *audio.Device) {
		atomic.AddInt64(&stoppedCount, 1)
		select {
		case stoppedCh <- struct{}{}:
		default:
		}
	}
	cfg.DataAvailable = func(dev *audio.Device, frameCount int, in []byte) {}

	dev, err := ctx.InitDevice(cfg)
	require.NoError(t, err)
	defer dev.Uninit()

	require.Equal(t, int64(0), atomic.LoadInt64(&stoppedCount))

	require.NoError(t, dev.Start())
	require.NoError(t, dev.Stop())
	<-stoppedCh
	require.Equal(t, int64(1), atomic.LoadInt64(&stoppedCount))

	require.NoError(t, dev.Start())
	require.NoError(t, dev.Stop())
	<-stoppedCh
	require.Equal(t, int64(2), atomic.LoadInt64(&stoppedCount))
}

// TestDeviceIllegalTransitions covers every illegal state transition in
// §5's table; none of them should mutate device state.
func TestDeviceIllegalTransitions(t *testing.T) {
	ctx := newNullContext(t)
	cfg := audio.NewDeviceConfig(audio.Playback, pcm.FormatF32, 1, 48000)
	dev, err := ctx.InitDevice(cfg)
	require.NoError(t, err)
	defer dev.Uninit()

	// Stopped -> Stop is illegal.
	require.Equal(t, audio.ResultDeviceAlreadyStopped, dev.Stop())

	require.NoError(t, dev.Start())

	// Started -> Start is illegal.
	require.Equal(t, audio.ResultDeviceAlreadyStarted, dev.Start())

	require.NoError(t, dev.Stop())

	// Stopped -> Stop again is illegal.
	require.Equal(t, audio.ResultDeviceAlreadyStopped, dev.Stop())

	require.NoError(t, dev.Uninit())

	// Uninitialized -> Start/Stop is illegal.
	require.Equal(t, audio.ResultDeviceNotInitialized, dev.Start())
	require.Equal(t, audio.ResultDeviceNotInitialized, dev.Stop())
}
