// Package backend defines the contract every native audio backend
// implements (spec §4.2) and the small set of shared types that let
// pkg/audio drive any backend identically: format negotiation, device
// enumeration, and the start/stop/break/main-loop lifecycle.
package backend

import (
	"log/slog"

	"github.com/quietfield/pcmio/pkg/pcm"
)

// ID identifies a backend implementation.
type ID int

const (
	DSound ID = iota
	WASAPI
	ALSA
	OpenSL
	OpenAL
	Null
	WavFile
)

func (id ID) String() string {
	switch id {
	case DSound:
		return "dsound"
	case WASAPI:
		return "wasapi"
	case ALSA:
		return "alsa"
	case OpenSL:
		return "opensl"
	case OpenAL:
		return "openal"
	case Null:
		return "null"
	case WavFile:
		return "wavfile"
	default:
		return "unknown"
	}
}

// DefaultOrder is a reference preference order over all native backends.
// Context.New does not consult it: it tries only the candidates it is
// given, and NewDefault builds those from PlatformBackends.
var DefaultOrder = []ID{DSound, WASAPI, ALSA, OpenSL, OpenAL, Null}

// DeviceType selects which direction a device moves frames. It lives
// here rather than in pkg/audio so that this package has no dependency
// on its own caller; pkg/audio re-exports it under its own name.
type DeviceType int

const (
	Playback DeviceType = iota
	Capture
)

func (t DeviceType) String() string {
	if t == Capture {
		return "capture"
	}
	return "playback"
}

// DeviceInfo is the opaque (id, name) pair enumerate fills in (§4.2).
// ID is backend-specific: an ALSA "hw:C,D" name, an OpenAL device name,
// or a fixed placeholder ("default", "null", "wavfile") for backends
// that only expose one endpoint. NewDevice receives it back as
// DeviceSpec.DeviceID.
type DeviceInfo struct {
	ID   string
	Name string
}

// PullFunc is how a playback Device pulls frames from the DSP pipeline
// to hand to the OS endpoint: it writes up to frameCount frames of the
// negotiated internal format into dst and returns the count written.
type PullFunc func(frameCount int, dst []byte) int

// PushFunc is how a capture Device hands frames it acquired from the OS
// endpoint to the DSP pipeline / application callback.
type PushFunc func(frameCount int, src []byte)

// DeviceSpec is everything dev_init needs: the requested triple, the
// caller's preferred buffer sizing, and the pull/push functions the
// device's main loop drives against. Exactly one of Pull/Push is set,
// matching Type.
type DeviceSpec struct {
	Type       DeviceType
	DeviceID   string // "" selects the default device
	Format     pcm.Format
	Channels   int
	SampleRate int
	ChannelMap pcm.ChannelMap

	BufferSizeInFrames int
	PeriodCount        int

	Pull PullFunc
	Push PushFunc

	Logger *slog.Logger
}

// NegotiatedFormat is what dev_init writes back: the internal triple
// the backend actually settled on, which may differ from the request
// (§3, "the internal triple may differ from the requested triple").
type NegotiatedFormat struct {
	Format     pcm.Format
	Channels   int
	SampleRate int
	ChannelMap pcm.ChannelMap

	BufferSizeInFrames int
	PeriodCount        int
}

// Device is the per-instance half of the backend contract: dev_init has
// already run by the time a Device value exists (Backend.NewDevice IS
// dev_init); the remaining table entries map onto these methods.
type Device interface {
	// Negotiated returns the internal triple dev_init settled on.
	Negotiated() NegotiatedFormat

	// Start is dev_start: for playback, pre-roll by pulling one full
	// buffer and submitting it before starting the endpoint; for
	// capture, just start the endpoint. Pre: Stopped. Post: Started.
	Start() error

	// Stop is dev_stop: stop the endpoint and reset its cursor.
	// Pre: Started. Post: Stopped.
	Stop() error

	// Break is dev_break: cause a blocked MainLoop to return promptly.
	// Safe to call from another goroutine while MainLoop is running.
	Break()

	// MainLoop is dev_main_loop: run the I/O loop (§4.3) until Break is
	// signaled, then return. Pre: Started. Post: Stopped (on return).
	MainLoop() error

	// Uninit is dev_uninit: release all backend resources.
	// Pre: Stopped. Post: Uninitialized.
	Uninit() error
}

// Backend is the process-wide half of the contract (§4.2): ctx_init,
// ctx_uninit, enumerate, and the dev_init factory.
type Backend interface {
	ID() ID

	// Init is ctx_init: acquire backend resources. Failure means
	// Context.New should try the next backend in preference order.
	Init() error

	// Uninit is ctx_uninit. Pre: no live devices.
	Uninit() error

	// Enumerate is enumerate(type, &n, out[]): a pure read of available
	// devices of the given type.
	Enumerate(t DeviceType) ([]DeviceInfo, error)

	// NewDevice is dev_init: acquire the endpoint and negotiate format,
	// but must not start it. Pre: device Uninitialized. Post: Stopped.
	NewDevice(spec DeviceSpec) (Device, error)
}
