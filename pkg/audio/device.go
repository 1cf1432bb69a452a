package audio

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/devlog"
	"github.com/quietfield/pcmio/internal/primitive"
	"github.com/quietfield/pcmio/pkg/pcm"
)

// device state machine values (§5). Stored in an atomic 32-bit word so
// every observer sees a linearized view of the transition sequence.
const (
	stateUninitialized int32 = iota
	stateStopped
	stateStarting
	stateStarted
	stateStopping
)

// maxCaptureChunkBytes bounds how much data-available delivers per
// callback invocation (§6: "delivered in chunks up to 4 KiB of samples").
const maxCaptureChunkBytes = 4096

// Device is one negotiated playback or capture endpoint. Per §5 there
// are exactly two cooperating participants per device: whichever
// application goroutine calls Start/Stop/Uninit, and this Device's own
// dedicated worker goroutine, which runs the I/O loop and blocks on the
// wakeup event between runs.
type Device struct {
	id             uuid.UUID
	ctx            *Context
	cfg            DeviceConfig
	logger         *slog.Logger
	callbackLogger *slog.Logger // forwards to the app log callback via devlog

	backendDevice backend.Device
	negotiated    backend.NegotiatedFormat

	playPipeline    *pcm.Pipeline
	capturePipeline *pcm.Pipeline

	// capture push state, touched only from the worker thread inside
	// backend.PushFunc / captureUpstream, so it needs no synchronization
	// beyond the ordering guarantee that data-available never overlaps
	// itself for one device (§5).
	captureSrc       []byte
	captureCursor    int
	captureRemaining int

	state      primitive.State32
	workResult primitive.State32 // holds a Result, published by the worker before the start event fires

	mu         sync.Mutex // serializes Start/Stop/Uninit from the application side
	wakeupEvt  *primitive.AutoResetEvent
	startEvt   *primitive.AutoResetEvent
	stopEvt    *primitive.AutoResetEvent
	workerDone chan struct{}

	dataNeeded    primitive.CallbackPointer[DataNeededFunc]
	dataAvailable primitive.CallbackPointer[DataAvailableFunc]
	stoppedCB     primitive.CallbackPointer[StoppedFunc]
	logCB         primitive.CallbackPointer[LogFunc]
}

// InitDevice is dev_init: negotiate an endpoint with the context's
// backend, build the DSP pipeline bridging the caller's format to
// whatever the backend settled on, and spawn the worker goroutine
// parked on the wakeup event. Pre: none. Post: Stopped.
func (c *Context) InitDevice(cfg DeviceConfig) (*Device, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	d := &Device{
		id:         id,
		ctx:        c,
		cfg:        cfg,
		logger:     c.logger.With("device uuid", id, "device_type", cfg.Type.String()),
		wakeupEvt:  primitive.NewAutoResetEvent(),
		startEvt:   primitive.NewAutoResetEvent(),
		stopEvt:    primitive.NewAutoResetEvent(),
		workerDone: make(chan struct{}),
	}
	if cfg.DataNeeded != nil {
		d.dataNeeded.Store(&cfg.DataNeeded)
	}
	if cfg.DataAvailable != nil {
		d.dataAvailable.Store(&cfg.DataAvailable)
	}
	if cfg.Stopped != nil {
		d.stoppedCB.Store(&cfg.Stopped)
	}
	if cfg.Log != nil {
		d.logCB.Store(&cfg.Log)
	}
	d.callbackLogger = slog.New(devlog.New(d.deliverLogLine, slog.LevelInfo))

	spec := backend.DeviceSpec{
		Type:               cfg.Type,
		Format:             cfg.Format,
		Channels:           cfg.Channels,
		SampleRate:         cfg.SampleRate,
		ChannelMap:         cfg.ChannelMap,
		BufferSizeInFrames: cfg.BufferSizeInFrames,
		PeriodCount:        cfg.PeriodCount,
		Logger:             d.logger,
	}
	if cfg.Type == Playback {
		spec.Pull = d.pullFromPipeline
	} else {
		spec.Push = d.pushToPipeline
	}

	c.mu.Lock()
	bd, err := c.backend.NewDevice(spec)
	c.mu.Unlock()
	if err != nil {
		return nil, backendError(c.backend.ID().String(), ResultFailedToInitBackend, err)
	}
	d.backendDevice = bd
	d.negotiated = bd.Negotiated()

	if err := d.buildPipelines(); err != nil {
		bd.Uninit()
		return nil, backendError(c.backend.ID().String(), ResultFormatNotSupported, err)
	}

	d.state.Store(stateStopped)
	c.registerDevice()

	go d.workerLoop()

	d.logger.Info("device initialized",
		"format", d.negotiated.Format.String(),
		"channels", d.negotiated.Channels,
		"sample_rate", d.negotiated.SampleRate,
	)
	return d, nil
}

func (d *Device) buildPipelines() error {
	if d.cfg.Type == Playback {
		p, err := pcm.NewPipeline(pcm.PipelineConfig{
			FormatIn:      d.cfg.Format,
			ChannelsIn:    d.cfg.Channels,
			RateIn:        d.cfg.SampleRate,
			ChannelMapIn:  d.cfg.ChannelMap,
			FormatOut:     d.negotiated.Format,
			ChannelsOut:   d.negotiated.Channels,
			RateOut:       d.negotiated.SampleRate,
			ChannelMapOut: d.negotiated.ChannelMap,
			Upstream:      d.pullFromApp,
		})
		if err != nil {
			return err
		}
		d.playPipeline = p
		return nil
	}

	p, err := pcm.NewPipeline(pcm.PipelineConfig{
		FormatIn:      d.negotiated.Format,
		ChannelsIn:    d.negotiated.Channels,
		RateIn:        d.negotiated.SampleRate,
		ChannelMapIn:  d.negotiated.ChannelMap,
		FormatOut:     d.cfg.Format,
		ChannelsOut:   d.cfg.Channels,
		RateOut:       d.cfg.SampleRate,
		ChannelMapOut: d.cfg.ChannelMap,
		Upstream:      d.captureUpstream,
	})
	if err != nil {
		return err
	}
	d.capturePipeline = p
	return nil
}

// pullFromApp is the pipeline's upstream reader for playback: it calls
// the application's data-needed callback and zero-fills any shortfall,
// per §6 ("shortfalls are zero-filled by the library").
func (d *Device) pullFromApp(frameCount int, out []byte) int {
	cbp := d.dataNeeded.Load()
	stride := d.cfg.Channels * d.cfg.Format.BytesPerSample()
	if cbp == nil || *cbp == nil {
		for i := range out[:frameCount*stride] {
			out[i] = 0
		}
		return frameCount
	}
	n := (*cbp)(d, frameCount, out)
	if n < 0 {
		n = 0
	}
	if n > frameCount {
		n = frameCount
	}
	if n < frameCount {
		for i := n * stride; i < frameCount*stride; i++ {
			out[i] = 0
		}
	}
	return frameCount
}

// pullFromPipeline is the backend.PullFunc handed to dev_init for
// playback: it just runs the DSP pipeline to completion for this call.
func (d *Device) pullFromPipeline(frameCount int, dst []byte) int {
	return d.playPipeline.Read(frameCount, dst)
}

// pushToPipeline is the backend.PushFunc handed to dev_init for
// capture: it stages src for captureUpstream to pull from, then drains
// the pipeline in up-to-4KiB chunks, invoking data-available for each.
func (d *Device) pushToPipeline(frameCount int, src []byte) {
	d.captureSrc = src
	d.captureCursor = 0
	d.captureRemaining = frameCount

	outStride := d.cfg.Channels * d.cfg.Format.BytesPerSample()
	if outStride == 0 {
		return
	}
	chunkFrames := maxCaptureChunkBytes / outStride
	if chunkFrames < 1 {
		chunkFrames = 1
	}
	buf := make([]byte, chunkFrames*outStride)

	for d.captureRemaining > 0 {
		got := d.capturePipeline.Read(chunkFrames, buf)
		if got == 0 {
			break
		}
		if cbp := d.dataAvailable.Load(); cbp != nil && *cbp != nil {
			(*cbp)(d, got, buf[:got*outStride])
		}
	}
}

// captureUpstream is the capture pipeline's upstream reader: it copies
// out of the byte slice pushToPipeline staged for this call.
func (d *Device) captureUpstream(frameCount int, out []byte) int {
	if d.captureRemaining == 0 {
		return 0
	}
	stride := d.negotiated.Channels * d.negotiated.Format.BytesPerSample()
	take := frameCount
	if take > d.captureRemaining {
		take = d.captureRemaining
	}
	n := take * stride
	off := d.captureCursor * stride
	copy(out[:n], d.captureSrc[off:off+n])
	d.captureCursor += take
	d.captureRemaining -= take
	return take
}

// ID returns this device's identity, primarily useful for correlating
// log lines across the application and library.
func (d *Device) ID() uuid.UUID { return d.id }

// Negotiated returns the internal format the backend settled on.
func (d *Device) Negotiated() backend.NegotiatedFormat { return d.negotiated }

// Start is start: Stopped -> Starting -> (worker ack) -> Started.
// It blocks on the start event until the worker has either entered its
// main loop or failed in dev_start (§5).
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.CompareAndSwap(stateStopped, stateStarting) {
		switch d.state.Load() {
		case stateUninitialized:
			return ResultDeviceNotInitialized
		case stateStarting:
			return ResultDeviceAlreadyStarting
		case stateStarted:
			return ResultDeviceAlreadyStarted
		case stateStopping:
			return ResultDeviceBusy
		default:
			return ResultDeviceBusy
		}
	}

	d.wakeupEvt.Signal()
	d.startEvt.Wait()

	if Result(d.workResult.Load()) != ResultOK {
		return Result(d.workResult.Load())
	}
	return nil
}

// Stop is stop: Started -> Stopping -> (worker ack) -> Stopped. It
// signals dev_break and blocks on the stop event until the worker has
// returned from the main loop, called dev_stop, and published Stopped.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *Device) stopLocked() error {
	if !d.state.CompareAndSwap(stateStarted, stateStopping) {
		switch d.state.Load() {
		case stateUninitialized:
			return ResultDeviceNotInitialized
		case stateStopped:
			return ResultDeviceAlreadyStopped
		case stateStopping:
			return ResultDeviceAlreadyStopping
		case stateStarting:
			return ResultDeviceBusy
		default:
			return ResultDeviceBusy
		}
	}

	d.backendDevice.Break()
	d.stopEvt.Wait()
	return nil
}

// Uninit is uninit: it always runs to completion, even if stopping
// fails. It stops the device first if necessary, transitions to
// Uninitialized, wakes the worker so it can return, and releases the
// backend endpoint. An error from that release is returned only after
// the teardown has finished.
func (d *Device) Uninit() error {
	d.mu.Lock()
	if d.state.Load() == stateStarted {
		_ = d.stopLocked()
	}
	d.state.Store(stateUninitialized)
	d.mu.Unlock()

	d.wakeupEvt.Signal()
	<-d.workerDone

	err := d.backendDevice.Uninit()
	d.ctx.unregisterDevice()
	d.logger.Info("device uninitialized")
	if err != nil {
		return backendError(d.ctx.backend.ID().String(), ResultFailedToStopBackendDevice, err)
	}
	return nil
}

// SetDataNeeded atomically installs a new playback callback. Per §5
// each invocation of a callback sees some value installed
// at-or-before the invocation; there are no torn reads.
func (d *Device) SetDataNeeded(fn DataNeededFunc) { d.dataNeeded.Store(&fn) }

// SetDataAvailable atomically installs a new capture callback.
func (d *Device) SetDataAvailable(fn DataAvailableFunc) { d.dataAvailable.Store(&fn) }

// SetStoppedCallback atomically installs a new stopped callback.
func (d *Device) SetStoppedCallback(fn StoppedFunc) { d.stoppedCB.Store(&fn) }

// SetLogCallback atomically installs a new log callback.
func (d *Device) SetLogCallback(fn LogFunc) { d.logCB.Store(&fn) }

// emitLog records a "[BACKEND] message" line (§7) both on the ambient
// slog logger and, via the devlog-backed callbackLogger, on the
// application's log callback if one is installed.
func (d *Device) emitLog(message string) {
	d.logger.Debug(message)
	d.callbackLogger.Info(message)
}

// deliverLogLine is the devlog.Sink that hands a formatted line to
// whatever log callback is currently installed.
func (d *Device) deliverLogLine(message string) {
	if cbp := d.logCB.Load(); cbp != nil && *cbp != nil {
		(*cbp)(d, message)
	}
}

// workerLoop is the dedicated worker thread of §5: it blocks on wakeup
// between runs and, on each wakeup while the device is not being
// uninitialized, drives one full Started run of the backend device.
func (d *Device) workerLoop() {
	defer close(d.workerDone)
	for {
		d.wakeupEvt.Wait()
		if d.state.Load() == stateUninitialized {
			return
		}
		d.runOnce()
	}
}

// runOnce drives one Starting->Started->(main loop)->Stopping->Stopped
// cycle. It publishes work_result and signals the start event before
// entering the main loop (or immediately, on dev_start failure), and
// signals the stop event only after state=Stopped has been published,
// matching the ordering guarantees in §5. The stopped callback fires
// only when the device actually reached Started (a dev_start failure
// never leaves Started, so it never fires it).
//
// MainLoop can return two ways: because Stop() called dev_break (state
// is already Stopping, and stop is blocked on stopEvt), or because the
// backend gave up on its own, e.g. an unrecoverable xrun (state is
// still Started, nobody is waiting). Only the first case has a waiter
// to wake; signaling stopEvt in the second case would park a token
// that a later, unrelated Stop() call would consume immediately
// without actually waiting for that cycle's worker, breaking §5's
// linearizability guarantee. The CAS below tells the two cases apart:
// it only succeeds for a self-exit, since Stop() already moved the
// state to Stopping.
func (d *Device) runOnce() {
	if err := d.backendDevice.Start(); err != nil {
		d.workResult.Store(int32(ResultFailedToStartBackendDevice))
		d.state.Store(stateStopped)
		d.startEvt.Signal()
		d.emitLog("[" + d.ctx.backend.ID().String() + "] failed to start device: " + err.Error())
		return
	}

	d.workResult.Store(int32(ResultOK))
	d.state.Store(stateStarted)
	d.startEvt.Signal()

	if err := d.backendDevice.MainLoop(); err != nil {
		d.emitLog("[" + d.ctx.backend.ID().String() + "] main loop returned an error: " + err.Error())
	}

	if err := d.backendDevice.Stop(); err != nil {
		d.emitLog("[" + d.ctx.backend.ID().String() + "] failed to stop device: " + err.Error())
	}

	if selfExit := d.state.CompareAndSwap(stateStarted, stateStopped); !selfExit {
		d.state.Store(stateStopped)
		d.stopEvt.Signal()
	}

	if cbp := d.stoppedCB.Load(); cbp != nil && *cbp != nil {
		(*cbp)(d)
	}
}
