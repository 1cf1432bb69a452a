//go:build windows

// Package wasapi implements the WASAPI backend via cgo against the COM
// interfaces exposed by mmdeviceapi.h/audioclient.h. It drives shared-mode
// rendering/capture, polling the endpoint once per period rather than
// waiting on an IAudioClient event handle.
package wasapi

/*
#cgo LDFLAGS: -lole32 -lksuser
#include <stdlib.h>
#include <string.h>
#include <initguid.h>
#include <mmdeviceapi.h>
#include <audioclient.h>

// waGetDefaultDevice, waActivateClient, waStart/waStop/waRelease wrap the
// COM call sequence (CoCreateInstance -> IMMDeviceEnumerator ->
// GetDefaultAudioEndpoint -> IMMDevice::Activate -> IAudioClient) into
// plain C functions cgo can call without needing per-vtable Go shims for
// every COM method.
extern void* waGetDefaultDevice(int isCapture);
extern void* waActivateClient(void* device, int channels, int sampleRate, int bitsPerSample, int isFloat, unsigned int bufferFrames);
extern void* waGetRenderClient(void* audioClient);
extern void* waGetCaptureClient(void* audioClient);
extern int waStart(void* audioClient);
extern int waStop(void* audioClient);
extern unsigned int waGetBufferSize(void* audioClient);
extern unsigned int waGetCurrentPadding(void* audioClient);
extern void* waRenderGetBuffer(void* renderClient, unsigned int numFrames);
extern int waRenderReleaseBuffer(void* renderClient, unsigned int numFrames);
extern void* waCaptureGetBuffer(void* captureClient, unsigned int* numFramesAvailable, unsigned int* flags);
extern int waCaptureReleaseBuffer(void* captureClient, unsigned int numFrames);
extern void waRelease(void* punk);
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

var errNoDevice = errors.New("wasapi: no default audio endpoint")

// Backend is the WASAPI ctx_init/enumerate half of the contract.
// ctx_init here just confirms CoInitializeEx succeeded; per-device
// Activate happens in NewDevice.
type Backend struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "wasapi")}
}

func (b *Backend) ID() backend.ID { return backend.WASAPI }

func (b *Backend) Init() error {
	C.CoInitializeEx(nil, C.COINIT_MULTITHREADED)
	dev := C.waGetDefaultDevice(0)
	if dev == nil {
		return errNoDevice
	}
	C.waRelease(dev)
	return nil
}

func (b *Backend) Uninit() error {
	C.CoUninitialize()
	return nil
}

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	isCapture := 0
	if t == backend.Capture {
		isCapture = 1
	}
	dev := C.waGetDefaultDevice(C.int(isCapture))
	if dev == nil {
		return nil, errNoDevice
	}
	defer C.waRelease(dev)
	return []backend.DeviceInfo{{ID: "default", Name: "Default WASAPI Endpoint"}}, nil
}

// NewDevice activates an IAudioClient in shared mode against the
// default endpoint, requesting the internal format 1:1 (WASAPI shared
// mode always accepts the mix format its engine negotiates, which this
// binding requests directly rather than querying GetMixFormat).
func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	isCapture := 0
	if spec.Type == backend.Capture {
		isCapture = 1
	}
	dev := C.waGetDefaultDevice(C.int(isCapture))
	if dev == nil {
		return nil, errNoDevice
	}

	isFloat := 0
	bits := spec.Format.BytesPerSample() * 8
	if spec.Format == pcm.FormatF32 {
		isFloat = 1
	}

	client := C.waActivateClient(dev, C.int(spec.Channels), C.int(spec.SampleRate), C.int(bits), C.int(isFloat), C.uint(spec.BufferSizeInFrames))
	C.waRelease(dev)
	if client == nil {
		return nil, errors.New("wasapi: IAudioClient activation failed")
	}

	bufferFrames := int(C.waGetBufferSize(client))
	if bufferFrames == 0 {
		bufferFrames = spec.BufferSizeInFrames
	}

	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}

	d := &Device{
		spec:   spec,
		client: client,
		stride: spec.Channels * spec.Format.BytesPerSample(),
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: bufferFrames,
			PeriodCount:        2,
		},
		breakCh: make(chan struct{}),
	}
	if spec.Type == backend.Capture {
		d.captureClient = C.waGetCaptureClient(client)
	} else {
		d.renderClient = C.waGetRenderClient(client)
	}
	return d, nil
}

// Device drives one activated IAudioClient through the §4.3 loop.
type Device struct {
	spec          backend.DeviceSpec
	negotiated    backend.NegotiatedFormat
	client        unsafe.Pointer
	renderClient  unsafe.Pointer
	captureClient unsafe.Pointer
	stride        int

	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

// Start pre-rolls a full buffer into the render client before starting
// the endpoint (§4.3: "fill the entire endpoint buffer with a single
// pull before starting the endpoint"); capture has nothing to pre-roll.
func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	if d.spec.Type == backend.Playback && d.spec.Pull != nil {
		frames := d.negotiated.BufferSizeInFrames
		buf := make([]byte, frames*d.stride)
		d.spec.Pull(frames, buf)
		if err := d.writeToRenderClient(frames, buf); err != nil {
			return err
		}
	}
	if C.waStart(d.client) < 0 {
		return errors.New("wasapi: IAudioClient::Start failed")
	}
	return nil
}

// writeToRenderClient acquires numFrames of endpoint buffer space and
// copies buf into it, the §4.3 "acquire n frames -> pull into that
// buffer -> release" sequence for playback.
func (d *Device) writeToRenderClient(numFrames int, buf []byte) error {
	if numFrames == 0 {
		return nil
	}
	ptr := C.waRenderGetBuffer(d.renderClient, C.uint(numFrames))
	if ptr == nil {
		return errors.New("wasapi: IAudioRenderClient::GetBuffer failed")
	}
	C.memcpy(ptr, unsafe.Pointer(&buf[0]), C.size_t(numFrames*d.stride))
	if C.waRenderReleaseBuffer(d.renderClient, C.uint(numFrames)) < 0 {
		return errors.New("wasapi: IAudioRenderClient::ReleaseBuffer failed")
	}
	return nil
}

func (d *Device) Stop() error {
	if C.waStop(d.client) < 0 {
		return errors.New("wasapi: IAudioClient::Stop failed")
	}
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop mirrors the ALSA and null backends' shape: wait roughly one
// period, then move frames. A real implementation blocks on the
// IAudioClient's event handle via WaitForSingleObject instead of a
// ticker; that plumbing is a straight cgo extension of this same loop.
// The transfer itself is not optional: each tick acquires the
// endpoint's own buffer via GetBuffer, pulls or pushes directly
// into/out of it, and releases it, matching §4.3's loop body.
func (d *Device) MainLoop() error {
	periodFrames := d.negotiated.BufferSizeInFrames / d.negotiated.PeriodCount
	buf := make([]byte, d.negotiated.BufferSizeInFrames*d.stride)
	period := primitive.PeriodDuration(d.negotiated.BufferSizeInFrames, d.negotiated.PeriodCount, d.negotiated.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-d.breakCh:
			return nil
		case <-ticker.C:
			if d.spec.Type == backend.Playback {
				padding := int(C.waGetCurrentPadding(d.client))
				available := d.negotiated.BufferSizeInFrames - padding
				n := periodFrames
				if n > available {
					n = available
				}
				if n <= 0 {
					continue
				}
				if d.spec.Pull != nil {
					d.spec.Pull(n, buf[:n*d.stride])
				}
				if err := d.writeToRenderClient(n, buf[:n*d.stride]); err != nil {
					return err
				}
			} else {
				var avail, flags C.uint
				ptr := C.waCaptureGetBuffer(d.captureClient, &avail, &flags)
				if ptr == nil || avail == 0 {
					continue
				}
				n := int(avail)
				need := n * d.stride
				if flags&C.AUDCLNT_BUFFERFLAGS_SILENT != 0 {
					for i := range buf[:need] {
						buf[i] = 0
					}
				} else {
					C.memcpy(unsafe.Pointer(&buf[0]), ptr, C.size_t(need))
				}
				C.waCaptureReleaseBuffer(d.captureClient, C.uint(n))
				if d.spec.Push != nil {
					d.spec.Push(n, buf[:need])
				}
			}
		}
	}
}

func (d *Device) Uninit() error {
	if d.renderClient != nil {
		C.waRelease(d.renderClient)
	}
	if d.captureClient != nil {
		C.waRelease(d.captureClient)
	}
	C.waRelease(d.client)
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
