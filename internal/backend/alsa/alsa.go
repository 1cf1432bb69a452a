//go:build linux

// Package alsa implements the ALSA backend using the real ioctl-based
// gen2brain/alsa binding rather than a hand-rolled cgo wrapper.
package alsa

import (
	"fmt"
	"log/slog"
	"sync"

	upstream "github.com/gen2brain/alsa"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/primitive"
	"github.com/quietfield/pcmio/pkg/pcm"
)

// alsaFormat maps this module's Format to gen2brain/alsa's PcmFormat.
// ALSA has no native s24-packed-3-byte format in this binding's format
// table usable at the byte width this library promises, so s24 is
// negotiated as s32 internally and converted at the pipeline boundary.
func alsaFormat(f pcm.Format) (upstream.PcmFormat, pcm.Format) {
	switch f {
	case pcm.FormatU8:
		return upstream.PCM_FORMAT_U8, pcm.FormatU8
	case pcm.FormatS16:
		return upstream.PCM_FORMAT_S16_LE, pcm.FormatS16
	case pcm.FormatS24:
		return upstream.PCM_FORMAT_S32_LE, pcm.FormatS32
	case pcm.FormatS32:
		return upstream.PCM_FORMAT_S32_LE, pcm.FormatS32
	case pcm.FormatF32:
		return upstream.PCM_FORMAT_FLOAT_LE, pcm.FormatF32
	default:
		return upstream.PCM_FORMAT_S16_LE, pcm.FormatS16
	}
}

// Backend is the ALSA ctx_init/ctx_uninit/enumerate half of the
// contract. ALSA has no meaningful process-wide handle beyond the
// device nodes themselves, so Init/Uninit are no-ops.
type Backend struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "alsa")}
}

func (b *Backend) ID() backend.ID { return backend.ALSA }

func (b *Backend) Init() error { return nil }

func (b *Backend) Uninit() error { return nil }

// Enumerate lists ALSA hardware PCM nodes as "hw:C,D" identifiers. This
// binding doesn't expose a card-scanning API, so it reports only the
// conventional default "hw:0,0"; other nodes are not discovered, though
// NewDevice still opens any name passed as DeviceSpec.DeviceID.
func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	return []backend.DeviceInfo{{ID: "hw:0,0", Name: "ALSA hw:0,0"}}, nil
}

// NewDevice opens the requested PCM node and negotiates hardware
// parameters via SetConfig (SNDRV_PCM_IOCTL_HW_PARAMS), then reads back
// whatever the driver actually settled on.
func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	name := spec.DeviceID
	if name == "" {
		name = "hw:0,0"
	}

	flags := upstream.PCM_MONOTONIC
	if spec.Type == backend.Capture {
		flags |= upstream.PCM_IN
	} else {
		flags |= upstream.PCM_OUT
	}

	fmtID, internalFormat := alsaFormat(spec.Format)
	periodCount := spec.PeriodCount
	if periodCount < 1 {
		periodCount = 2
	}
	periodSize := uint32(spec.BufferSizeInFrames / periodCount)
	if periodSize == 0 {
		periodSize = 1
	}

	cfg := &upstream.Config{
		Channels:    uint32(spec.Channels),
		Rate:        uint32(spec.SampleRate),
		PeriodSize:  periodSize,
		PeriodCount: uint32(periodCount),
		Format:      fmtID,
	}

	pcmHandle, err := upstream.PcmOpenByName(name, flags, cfg)
	if err != nil {
		return nil, backendError(name, err)
	}

	negotiatedChannelMap := spec.ChannelMap
	if len(negotiatedChannelMap) == 0 || int(pcmHandle.Channels()) != spec.Channels {
		negotiatedChannelMap = pcm.DefaultChannelMap(int(pcmHandle.Channels()))
	}

	dev := &Device{
		spec:      spec,
		pcm:       pcmHandle,
		logger:    b.logger.With("device", name, "device_type", spec.Type.String()),
		breakCh:   make(chan struct{}),
		stride:    int(pcmHandle.Channels()) * internalFormat.BytesPerSample(),
		periodLen: int(pcmHandle.PeriodSize()),
		negotiated: backend.NegotiatedFormat{
			Format:             internalFormat,
			Channels:           int(pcmHandle.Channels()),
			SampleRate:         int(pcmHandle.Rate()),
			ChannelMap:         negotiatedChannelMap,
			BufferSizeInFrames: int(pcmHandle.BufferSize()),
			PeriodCount:        int(pcmHandle.PeriodCount()),
		},
	}
	return dev, nil
}

// Device drives one ALSA PCM handle through the §4.3 I/O loop skeleton.
type Device struct {
	spec       backend.DeviceSpec
	pcm        *upstream.PCM
	negotiated backend.NegotiatedFormat
	logger     *slog.Logger

	stride    int
	periodLen int

	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

// Start pre-rolls a full buffer for playback (the first ALSA write
// implicitly starts the stream, per this binding's testPcmPlaybackStartup
// behavior) and is a no-op for capture, which starts on first Read.
func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	if d.spec.Type != backend.Playback || d.spec.Pull == nil {
		return nil
	}
	buf := make([]byte, d.negotiated.BufferSizeInFrames*d.stride)
	d.spec.Pull(d.negotiated.BufferSizeInFrames, buf)
	if err := d.pcm.Write(buf); err != nil {
		return backendError("write", err)
	}
	return nil
}

func (d *Device) Stop() error {
	if err := d.pcm.Stop(); err != nil {
		return backendError("stop", err)
	}
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop follows §4.3: wait for the PCM to become ready, then move
// one period of frames, recovering once from EPIPE (xrun) before
// giving up, exactly the policy §7 specifies for backend I/O faults.
func (d *Device) MainLoop() error {
	buf := make([]byte, d.periodLen*d.stride)
	waitTimeoutMs := int(primitive.PeriodDuration(d.negotiated.BufferSizeInFrames, d.negotiated.PeriodCount, d.negotiated.SampleRate).Milliseconds())
	retried := false
	for {
		select {
		case <-d.breakCh:
			return nil
		default:
		}

		ready, err := d.pcm.Wait(waitTimeoutMs)
		if err != nil {
			if retried {
				return backendError("wait", err)
			}
			retried = true
			if recoverErr := d.pcm.Prepare(); recoverErr != nil {
				return backendError("wait", err)
			}
			continue
		}
		if !ready {
			continue
		}

		select {
		case <-d.breakCh:
			return nil
		default:
		}

		if d.spec.Type == backend.Playback {
			if d.spec.Pull != nil {
				d.spec.Pull(d.periodLen, buf)
			}
			if err := d.pcm.Write(buf); err != nil {
				if retried {
					return backendError("write", err)
				}
				retried = true
				if prepErr := d.pcm.Prepare(); prepErr != nil {
					return backendError("write", err)
				}
				continue
			}
		} else {
			if err := d.pcm.Read(buf); err != nil {
				if retried {
					return backendError("read", err)
				}
				retried = true
				if prepErr := d.pcm.Prepare(); prepErr != nil {
					return backendError("read", err)
				}
				continue
			}
			if d.spec.Push != nil {
				d.spec.Push(d.periodLen, buf)
			}
		}
		retried = false
	}
}

func (d *Device) Uninit() error {
	return d.pcm.Close()
}

func backendError(op string, err error) error {
	return fmt.Errorf("[alsa] %s: %w", op, err)
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
