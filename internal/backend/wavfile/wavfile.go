// Package wavfile implements a bonus loopback backend: playback devices
// encode what they're handed into a .wav file, capture devices decode
// frames back out of one, looping when the file runs out. It exists so
// the DSP pipeline, sample-rate conversion, and device state machine
// can all be exercised deterministically without any real hardware or
// OS audio API present, using the go-audio/wav decoder/encoder the
// same way the source project's file device does.
package wavfile

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/primitive"
	"github.com/quietfield/pcmio/pkg/pcm"
)

// Backend never fails Init/Uninit; the interesting failure mode is a
// bad path, surfaced from NewDevice.
type Backend struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{logger: logger.With("backend", "wavfile")}
}

func (b *Backend) ID() backend.ID { return backend.WavFile }

func (b *Backend) Init() error { return nil }

func (b *Backend) Uninit() error { return nil }

func (b *Backend) Enumerate(t backend.DeviceType) ([]backend.DeviceInfo, error) {
	return []backend.DeviceInfo{{ID: "wavfile", Name: "WAV file loopback"}}, nil
}

// NewDevice's DeviceSpec.DeviceID is the filesystem path: for playback
// it's the 16-bit WAV file each period is written to (its header is
// finalized on Stop, the file closed on Uninit), for capture it's the
// file decoded from and looped.
func (b *Backend) NewDevice(spec backend.DeviceSpec) (backend.Device, error) {
	if spec.DeviceID == "" {
		return nil, errors.New("wavfile: DeviceSpec.DeviceID must be a file path")
	}

	channelMap := spec.ChannelMap
	if len(channelMap) == 0 {
		channelMap = pcm.DefaultChannelMap(spec.Channels)
	}
	stride := spec.Channels * spec.Format.BytesPerSample()

	d := &Device{
		spec:    spec,
		stride:  stride,
		logger:  b.logger.With("path", spec.DeviceID, "device_type", spec.Type.String()),
		breakCh: make(chan struct{}),
		negotiated: backend.NegotiatedFormat{
			Format:             spec.Format,
			Channels:           spec.Channels,
			SampleRate:         spec.SampleRate,
			ChannelMap:         channelMap,
			BufferSizeInFrames: spec.BufferSizeInFrames,
			PeriodCount:        max1(spec.PeriodCount),
		},
	}

	if spec.Type == backend.Capture {
		f, err := os.Open(spec.DeviceID)
		if err != nil {
			return nil, err
		}
		decoder := wav.NewDecoder(f)
		if !decoder.IsValidFile() {
			f.Close()
			return nil, errors.New("wavfile: not a valid wav file")
		}
		buf, err := decoder.FullPCMBuffer()
		if err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
		d.captureSamples = buf.Data
		d.negotiated.SampleRate = int(decoder.SampleRate)
		d.negotiated.Channels = int(decoder.NumChans)
		d.negotiated.ChannelMap = pcm.DefaultChannelMap(int(decoder.NumChans))
		return d, nil
	}

	f, err := os.Create(spec.DeviceID)
	if err != nil {
		return nil, err
	}
	d.file = f
	d.encoder = wav.NewEncoder(f, spec.SampleRate, 16, spec.Channels, 1)
	return d, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

type Device struct {
	spec       backend.DeviceSpec
	negotiated backend.NegotiatedFormat
	stride     int
	logger     *slog.Logger

	file    *os.File
	encoder *wav.Encoder

	captureSamples []int
	captureCursor  int

	breakCh   chan struct{}
	breakOnce sync.Once
}

func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

func (d *Device) Start() error {
	d.breakCh = make(chan struct{})
	d.breakOnce = sync.Once{}
	return nil
}

func (d *Device) Stop() error {
	if d.encoder != nil {
		return d.encoder.Close()
	}
	return nil
}

func (d *Device) Break() {
	d.breakOnce.Do(func() { close(d.breakCh) })
}

// MainLoop has no OS backend to block on, so it paces itself to one
// period via a ticker rather than spinning, draining or filling one
// period per tick until Break, immediately looping back to the top of
// the file on capture exhaustion, matching the "reads from a file in a
// loop" behavior of the file device this backend is grounded on.
func (d *Device) MainLoop() error {
	periodFrames := d.negotiated.BufferSizeInFrames / d.negotiated.PeriodCount
	if periodFrames < 1 {
		periodFrames = 1
	}
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
					got := d.spec.Pull(periodFrames, buf)
					if got > 0 {
						d.writeFrames(buf[:got*d.stride])
					}
				}
			} else {
				d.fillCapture(buf, periodFrames)
				if d.spec.Push != nil {
					d.spec.Push(periodFrames, buf)
				}
			}
		}
	}
}

func (d *Device) writeFrames(buf []byte) {
	intBuf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: d.negotiated.Channels, SampleRate: d.negotiated.SampleRate},
		SourceBitDepth: 16,
	}
	n := len(buf) / d.negotiated.Format.BytesPerSample()
	intBuf.Data = make([]int, n)
	tmp := make([]byte, n*4)
	pcm.Convert(pcm.FormatS32, d.negotiated.Format, tmp, buf, n)
	for i := 0; i < n; i++ {
		v := int32(uint32(tmp[4*i]) | uint32(tmp[4*i+1])<<8 | uint32(tmp[4*i+2])<<16 | uint32(tmp[4*i+3])<<24)
		intBuf.Data[i] = int(v >> 16) // fold s32 down to s16 range, the encoder's bit depth
	}
	d.encoder.Write(intBuf)
}

func (d *Device) fillCapture(buf []byte, frameCount int) {
	stride := d.negotiated.Format.BytesPerSample()
	n := frameCount * d.negotiated.Channels
	for i := 0; i < n; i++ {
		if len(d.captureSamples) == 0 {
			break
		}
		v := d.captureSamples[d.captureCursor]
		d.captureCursor = (d.captureCursor + 1) % len(d.captureSamples)
		f := clamp(float64(v)/math.MaxInt16, -1, 1)
		writeSample(buf[i*stride:], f, d.negotiated.Format)
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func writeSample(dst []byte, f float64, format pcm.Format) {
	tmp := make([]byte, 4)
	bits := math.Float32bits(float32(f))
	tmp[0] = byte(bits)
	tmp[1] = byte(bits >> 8)
	tmp[2] = byte(bits >> 16)
	tmp[3] = byte(bits >> 24)
	pcm.Convert(format, pcm.FormatF32, dst, tmp, 1)
}

func (d *Device) Uninit() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.Device = (*Device)(nil)
