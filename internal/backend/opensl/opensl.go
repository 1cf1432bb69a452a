//go:build android

// Package opensl implements the OpenSL ES backend, the only audio API
// guaranteed present across the NDK API levels this library targets on
// Android. It drives a buffer-queue player/recorder with a pull/push
// cycle at the period granularity §4.3 specifies, paced by a ticker; no
// native buffer-queue callback is registered.
package opensl

/*
#cgo LDFLAGS: -lOpenSLES
#include <SLES/OpenSLES.h>
#include <SLES/OpenSLES_Android.h>
#include <stdlib.h>

extern void* pcmio_slCreateEngine(void);
extern void* slCreatePlayer(void* engine, int channels, int sampleRate, int bitsPerSample, unsigned int bufferBytes);
extern void* slCreateRecorder(void* engine, int channels, int sampleRate, int bitsPerSample, unsigned int bufferBytes);
extern int slEnqueue(void* bufferQueue, void* data, unsigned int bytes);
extern int slSetPlayState(void* object, int state);
extern void slDestroy(void* object);
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

type Backend struct {
	logger *slog.Logger
	engine unsafe.Pointer
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "opensl")}
}

func (b *Backend) ID() backend.ID { return backend.OpenSL }

func (b *Backend) Init() error {
	engine := C.pcmio_slCreateEngine()
	if engine == nil {
		return errors.New("opensl: engine creation failed")
	}
	b.engine = unsafe.Pointer(engine)
	return nil
}

func (b *Backend) Uninit() error {
	if b.engine != nil {
		C.slDestroy(b.engine)
		b.engine = nil
	}
	return nil
}

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	return []backend.DeviceInfo{{ID: "default", Name: "Default OpenSL ES Device"}}, nil
}

func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	stride := spec.Channels * spec.Format.BytesPerSample()
	bufferBytes := spec.BufferSizeInFrames * stride
	bits := spec.Format.BytesPerSample() * 8

	var obj unsafe.Pointer
	if spec.Type == backend.Capture {
		obj = unsafe.Pointer(C.slCreateRecorder(b.engine, C.int(spec.Channels), C.int(spec.SampleRate), C.int(bits), C.uint(bufferBytes)))
	} else {
		obj = unsafe.Pointer(C.slCreatePlayer(b.engine, C.int(spec.Channels), C.int(spec.SampleRate), C.int(bits), C.uint(bufferBytes)))
	}
	if obj == nil {
		return nil, errors.New("opensl: object creation failed")
	}

	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}

	return &Device{
		spec:   spec,
		object: obj,
		stride: stride,
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: spec.BufferSizeInFrames,
			PeriodCount:        2,
		},
		breakCh: make(chan struct{}),
	}, nil
}

type Device struct {
	spec       backend.DeviceSpec
	negotiated backend.NegotiatedFormat
	object     unsafe.Pointer
	stride     int

	breakCh   chan struct{}
	breakOnce sync.Once
}

const (
	slStatePlaying = 1
	slStateStopped = 0
)

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	if C.slSetPlayState(d.object, slStatePlaying) < 0 {
		return errors.New("opensl: SetPlayState(PLAYING) failed")
	}
	return nil
}

func (d *Device) Stop() error {
	if C.slSetPlayState(d.object, slStateStopped) < 0 {
		return errors.New("opensl: SetPlayState(STOPPED) failed")
	}
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop enqueues (or drains) one period's buffer at a time. OpenSL
// ES is itself callback-driven; per §5 an event-driven backend "may
// omit the worker" but this implementation keeps the same dedicated
// goroutine shape as every other backend for a uniform state machine,
// pacing the enqueue calls to one period's worth of time via a ticker
// instead of a real buffer-queue callback wait.
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
			if d.spec.Type == backend.Playback {
				if d.spec.Pull != nil {
					d.spec.Pull(periodFrames, buf)
				}
				C.slEnqueue(d.object, unsafe.Pointer(&buf[0]), C.uint(len(buf)))
			} else {
				C.slEnqueue(d.object, unsafe.Pointer(&buf[0]), C.uint(len(buf)))
				if d.spec.Push != nil {
					d.spec.Push(periodFrames, buf)
				}
			}
		}
	}
}

func (d *Device) Uninit() error {
	C.slDestroy(d.object)
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
