//go:build windows

// Package dsound implements the DirectSound fallback backend for
// Windows versions or drivers where WASAPI activation fails. It caps
// periods at 4, matching DirectSound's own notification-position limit.
package dsound

/*
#cgo LDFLAGS: -ldsound -lole32
#include <stdlib.h>
#include <dsound.h>

extern void* dsCreate(void);
extern void* dsCreateBuffer(void* ds, int channels, int sampleRate, int bitsPerSample, unsigned int bufferBytes, int isCapture);
extern int dsPlay(void* buffer, int isCapture);
extern int dsStop(void* buffer, int isCapture);
extern int dsWrite(void* buffer, unsigned int offset, unsigned int bytes, const void* data);
extern int dsRead(void* buffer, unsigned int offset, unsigned int bytes, void* data);
extern void dsRelease(void* punk);
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

// maxPeriods is DirectSound's own ceiling on how finely a caller can
// slice a ring buffer for notification purposes; NewDevice replaces a
// higher (or unset) period count with this value.
const maxPeriods = 4

type Backend struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "dsound")}
}

func (b *Backend) ID() backend.ID { return backend.DSound }

func (b *Backend) Init() error {
	C.CoInitializeEx(nil, C.COINIT_MULTITHREADED)
	ds := C.dsCreate()
	if ds == nil {
		return errors.New("dsound: DirectSoundCreate8 failed")
	}
	C.dsRelease(ds)
	return nil
}

func (b *Backend) Uninit() error {
	C.CoUninitialize()
	return nil
}

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	return []backend.DeviceInfo{{ID: "default", Name: "Default DirectSound Device"}}, nil
}

func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	ds := C.dsCreate()
	if ds == nil {
		return nil, errors.New("dsound: DirectSoundCreate8 failed")
	}

	periodCount := spec.PeriodCount
	if periodCount < 1 || periodCount > maxPeriods {
		periodCount = maxPeriods
	}
	bufferSize := spec.BufferSizeInFrames
	stride := spec.Channels * spec.Format.BytesPerSample()
	bufferBytes := bufferSize * stride

	isCapture := 0
	if spec.Type == backend.Capture {
		isCapture = 1
	}
	buf := C.dsCreateBuffer(ds, C.int(spec.Channels), C.int(spec.SampleRate), C.int(spec.Format.BytesPerSample()*8), C.uint(bufferBytes), C.int(isCapture))
	C.dsRelease(ds)
	if buf == nil {
		return nil, errors.New("dsound: buffer creation failed")
	}

	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}

	return &Device{
		spec:        spec,
		buffer:      buf,
		stride:      stride,
		bufferBytes: bufferBytes,
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: bufferSize,
			PeriodCount:        periodCount,
		},
		breakCh: make(chan struct{}),
	}, nil
}

// Device tracks its own write/read ring cursor rather than polling
// GetCurrentPosition: it is the buffer's only writer/reader, so a
// software cursor advanced by exactly what was locked each period
// stays exact and avoids a second COM round trip per period.
type Device struct {
	spec        backend.DeviceSpec
	negotiated  backend.NegotiatedFormat
	buffer      unsafe.Pointer
	stride      int
	bufferBytes int

	writeCursor int
	readCursor  int

	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

// Start pre-rolls a full ring buffer for playback before starting the
// secondary buffer looping (§4.3's mandatory pre-roll); capture starts
// with nothing pre-rolled.
func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	d.writeCursor = 0
	d.readCursor = 0
	if d.spec.Type == backend.Playback && d.spec.Pull != nil {
		buf := make([]byte, d.bufferBytes)
		d.spec.Pull(d.negotiated.BufferSizeInFrames, buf)
		if C.dsWrite(d.buffer, C.uint(0), C.uint(d.bufferBytes), unsafe.Pointer(&buf[0])) < 0 {
			return errors.New("dsound: pre-roll Lock/Unlock failed")
		}
	}
	isCapture := 0
	if d.spec.Type == backend.Capture {
		isCapture = 1
	}
	if C.dsPlay(d.buffer, C.int(isCapture)) < 0 {
		return errors.New("dsound: Play/Start failed")
	}
	return nil
}

func (d *Device) Stop() error {
	isCapture := 0
	if d.spec.Type == backend.Capture {
		isCapture = 1
	}
	if C.dsStop(d.buffer, C.int(isCapture)) < 0 {
		return errors.New("dsound: Stop failed")
	}
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop advances the ring buffer by one period each tick: Lock the
// region at the current cursor, pull into it (or push out of it), and
// Unlock, matching §4.3's loop body. A real implementation waits on the
// buffer's notification events instead of a ticker; that only changes
// how it blocks, not the transfer itself.
func (d *Device) MainLoop() error {
	periodFrames := d.negotiated.BufferSizeInFrames / d.negotiated.PeriodCount
	periodBytes := periodFrames * d.stride
	buf := make([]byte, periodBytes)
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
				if C.dsWrite(d.buffer, C.uint(d.writeCursor), C.uint(periodBytes), unsafe.Pointer(&buf[0])) < 0 {
					return errors.New("dsound: Lock/Unlock failed")
				}
				d.writeCursor = (d.writeCursor + periodBytes) % d.bufferBytes
			} else {
				if C.dsRead(d.buffer, C.uint(d.readCursor), C.uint(periodBytes), unsafe.Pointer(&buf[0])) < 0 {
					return errors.New("dsound: capture Lock/Unlock failed")
				}
				d.readCursor = (d.readCursor + periodBytes) % d.bufferBytes
				if d.spec.Push != nil {
					d.spec.Push(periodFrames, buf)
				}
			}
		}
	}
}

func (d *Device) Uninit() error {
	C.dsRelease(d.buffer)
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
