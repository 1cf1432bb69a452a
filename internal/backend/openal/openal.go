//go:build openal

// Package openal implements the OpenAL backend, an opt-in fallback (via
// the "openal" build tag) for platforms this library has no dedicated
// native backend for. It uses OpenAL's buffer-queue capture/source API,
// which is polling rather than event-driven, matching the shape §4.3
// specifies for a worker-driven backend.
package openal

/*
#cgo LDFLAGS: -lopenal
#include <AL/al.h>
#include <AL/alc.h>
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/primitive"
	"github.com/quietfield/pcmio/pkg/pcm"
)

func alFormat(channels int, format pcm.Format) (C.ALenum, bool) {
	switch {
	case channels == 1 && format == pcm.FormatU8:
		return C.AL_FORMAT_MONO8, true
	case channels == 1 && format == pcm.FormatS16:
		return C.AL_FORMAT_MONO16, true
	case channels == 2 && format == pcm.FormatU8:
		return C.AL_FORMAT_STEREO8, true
	case channels == 2 && format == pcm.FormatS16:
		return C.AL_FORMAT_STEREO16, true
	default:
		return 0, false
	}
}

type Backend struct {
	logger *slog.Logger
	device *C.ALCdevice
	ctx    *C.ALCcontext
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "openal")}
}

func (b *Backend) ID() backend.ID { return backend.OpenAL }

func (b *Backend) Init() error {
	dev := C.alcOpenDevice(nil)
	if dev == nil {
		return errors.New("openal: alcOpenDevice failed")
	}
	ctx := C.alcCreateContext(dev, nil)
	if ctx == nil {
		C.alcCloseDevice(dev)
		return errors.New("openal: alcCreateContext failed")
	}
	C.alcMakeContextCurrent(ctx)
	b.device = dev
	b.ctx = ctx
	return nil
}

func (b *Backend) Uninit() error {
	C.alcMakeContextCurrent(nil)
	if b.ctx != nil {
		C.alcDestroyContext(b.ctx)
	}
	if b.device != nil {
		C.alcCloseDevice(b.device)
	}
	return nil
}

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	name := C.GoString(C.alcGetString(nil, C.ALC_DEFAULT_DEVICE_SPECIFIER))
	if name == "" {
		name = "Default OpenAL Device"
	}
	return []backend.DeviceInfo{{ID: name, Name: name}}, nil
}

// NewDevice only supports the format subset OpenAL itself supports
// natively (mono/stereo, u8/s16); anything else is rejected here rather
// than silently degraded, so the caller can fall back to another
// backend or renegotiate.
func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	alFmt, ok := alFormat(spec.Channels, spec.Format)
	if !ok {
		return nil, errors.New("openal: unsupported channel/format combination")
	}

	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}

	d := &Device{
		spec:   spec,
		stride: spec.Channels * spec.Format.BytesPerSample(),
		alFmt:  alFmt,
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: spec.BufferSizeInFrames,
			PeriodCount:        min4(spec.PeriodCount),
		},
		breakCh: make(chan struct{}),
	}

	if spec.Type == backend.Capture {
		d.captureDevice = C.alcCaptureOpenDevice(nil, C.ALCuint(spec.SampleRate), alFmt, C.ALCsizei(spec.BufferSizeInFrames))
		if d.captureDevice == nil {
			return nil, errors.New("openal: alcCaptureOpenDevice failed")
		}
	} else {
		C.alGenSources(1, &d.source)
		C.alGenBuffers(numQueueBuffers, &d.buffers[0])
	}
	return d, nil
}

func min4(n int) int {
	if n < 1 || n > 4 {
		return 4
	}
	return n
}

const numQueueBuffers = 4

type Device struct {
	spec       backend.DeviceSpec
	negotiated backend.NegotiatedFormat
	stride     int
	alFmt      C.ALenum

	source        C.ALuint
	buffers       [numQueueBuffers]C.ALuint
	captureDevice *C.ALCdevice

	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	if d.spec.Type == backend.Capture {
		C.alcCaptureStart(d.captureDevice)
		return nil
	}
	periodFrames := d.negotiated.BufferSizeInFrames / d.negotiated.PeriodCount
	buf := make([]byte, periodFrames*d.stride)
	for i := 0; i < numQueueBuffers; i++ {
		if d.spec.Pull != nil {
			d.spec.Pull(periodFrames, buf)
		}
		C.alBufferData(d.buffers[i], d.alFmt, unsafe.Pointer(&buf[0]), C.ALsizei(len(buf)), C.ALsizei(d.negotiated.SampleRate))
	}
	C.alSourceQueueBuffers(d.source, numQueueBuffers, &d.buffers[0])
	C.alSourcePlay(d.source)
	return nil
}

func (d *Device) Stop() error {
	if d.spec.Type == backend.Capture {
		C.alcCaptureStop(d.captureDevice)
		return nil
	}
	C.alSourceStop(d.source)
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop polls processed-buffer count / capture sample count each
// period, matching the polling nature of OpenAL's queue and capture
// APIs (there is no blocking wait primitive to hand off to). The poll
// itself is paced to one period via a ticker rather than spinning.
func (d *Device) MainLoop() error {
	periodFrames := d.negotiated.BufferSizeInFrames / d.negotiated.PeriodCount
	buf := make([]byte, periodFrames*d.stride)
	period := primitive.PeriodDuration(d.negotiated.BufferSizeInFrames, d.negotiated.PeriodCount, d.negotiated.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-d.breakCh:
			return nil
		case <-ticker.C:
		}

		if d.spec.Type == backend.Capture {
			var avail C.ALCint
			C.alcGetIntegerv(d.captureDevice, C.ALC_CAPTURE_SAMPLES, 1, &avail)
			if int(avail) < periodFrames {
				continue
			}
			C.alcCaptureSamples(d.captureDevice, unsafe.Pointer(&buf[0]), C.ALCsizei(periodFrames))
			if d.spec.Push != nil {
				d.spec.Push(periodFrames, buf)
			}
			continue
		}

		var processed C.ALint
		C.alGetSourcei(d.source, C.AL_BUFFERS_PROCESSED, &processed)
		if processed <= 0 {
			continue
		}
		var bufID C.ALuint
		C.alSourceUnqueueBuffers(d.source, 1, &bufID)
		if d.spec.Pull != nil {
			d.spec.Pull(periodFrames, buf)
		}
		C.alBufferData(bufID, d.alFmt, unsafe.Pointer(&buf[0]), C.ALsizei(len(buf)), C.ALsizei(d.negotiated.SampleRate))
		C.alSourceQueueBuffers(d.source, 1, &bufID)
	}
}

func (d *Device) Uninit() error {
	if d.spec.Type == backend.Capture {
		if d.captureDevice != nil {
			C.alcCaptureCloseDevice(d.captureDevice)
		}
		return nil
	}
	C.alDeleteSources(1, &d.source)
	C.alDeleteBuffers(numQueueBuffers, &d.buffers[0])
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
