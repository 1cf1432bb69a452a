// Package null implements the silence backend: a fully functional
// Backend that never touches real hardware, used for testing the
// device state machine, pre-roll, and pull-based DSP pipeline against
// the concrete scenarios in spec §8 without any OS audio API present.
package null

import (
	"log/slog"
	"sync"
	"time"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/primitive"
	"github.com/quietfield/pcmio/pkg/pcm"
)

// Backend is the null backend. It always initializes successfully and
// enumerates a single synthetic device per type.
type Backend struct {
	logger *slog.Logger
}

// New returns a null backend, ready to Init.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "null")}
}

func (b *Backend) ID() backend.ID { return backend.Null }

func (b *Backend) Init() error { return nil }

func (b *Backend) Uninit() error { return nil }

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	name := "Null Playback Device"
	if t == backend.Capture {
		name = "Null Capture Device"
	}
	return []backend.DeviceInfo{{ID: "null", Name: name}}, nil
}

// NewDevice negotiates the internal format as identical to the request
// (the null backend never needs a conversion) and allocates the
// scratch region the main loop pulls/pushes into.
func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}
	periodCount := spec.PeriodCount
	if periodCount < 1 {
		periodCount = 2
	}
	bufferSize := spec.BufferSizeInFrames
	if bufferSize < periodCount {
		bufferSize = periodCount
	}

	stride := spec.Channels * spec.Format.BytesPerSample()
	dev := &Device{
		spec:        spec,
		periodCount: periodCount,
		bufferSize:  bufferSize,
		periodSize:  bufferSize / periodCount,
		stride:      stride,
		scratch:     make([]byte, bufferSize*stride),
		breakCh:     make(chan struct{}),
		logger:      b.logger.With("device_type", spec.Type.String()),
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: bufferSize,
			PeriodCount:        periodCount,
		},
	}
	return dev, nil
}

// Device is the null backend's per-instance state: a scratch buffer
// standing in for the OS endpoint's ring buffer, and a period ticker
// standing in for wait_for_frames.
type Device struct {
	spec        backend.DeviceSpec
	negotiated  backend.NegotiatedFormat
	periodCount int
	bufferSize  int
	periodSize  int
	stride      int
	logger      *slog.Logger

	scratch []byte

	mu        sync.Mutex
	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

// Start pre-rolls a full buffer from the DSP pipeline for playback
// before returning; for capture there is nothing to pre-roll.
func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	if d.spec.Type == backend.Playback && d.spec.Pull != nil {
		d.spec.Pull(d.bufferSize, d.scratch)
	}
	return nil
}

func (d *Device) Stop() error { return nil }

// Break causes a blocked MainLoop to return promptly. Safe to call
// once; a second Break is a no-op, matching the state machine's
// contract that dev_break is only ever issued once per Start/Stop
// cycle.
func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop simulates wait_for_frames with a ticker at one period's
// duration, exactly the deadline §5 requires (bounded at 1ms), and
// drives the pipeline over periodSize frames each tick.
func (d *Device) MainLoop() error {
	period := primitive.PeriodDuration(d.bufferSize, d.periodCount, d.spec.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	buf := make([]byte, d.periodSize*d.stride)
	for {
		select {
		case <-d.breakCh:
			return nil
		case <-ticker.C:
			switch d.spec.Type {
			case backend.Playback:
				if d.spec.Pull != nil {
					d.spec.Pull(d.periodSize, buf)
				}
			case backend.Capture:
				for i := range buf {
					buf[i] = 0
				}
				if d.spec.Push != nil {
					d.spec.Push(d.periodSize, buf)
				}
			}
		}
	}
}

func (d *Device) Uninit() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
