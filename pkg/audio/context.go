package audio

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quietfield/pcmio/internal/backend"
)

// DeviceType re-exports backend.DeviceType so callers only ever import
// pkg/audio.
type DeviceType = backend.DeviceType

const (
	Playback = backend.Playback
	Capture  = backend.Capture
)

// DeviceDescriptor is the supplemented, friendly-printing form of
// backend.DeviceInfo returned by Context.Enumerate (see
// internal/audioapi.AudioIODevice.String in the teacher for the
// pattern this mirrors).
type DeviceDescriptor struct {
	ID   string
	Name string
}

func (d DeviceDescriptor) String() string {
	return "ID: " + d.ID + "\nName: " + d.Name + "\n"
}

// Context is process-wide state holding the selected backend and any
// resources it needs. The Context is referenced, not owned, by every
// Device it creates.
type Context struct {
	id      uuid.UUID
	logger  *slog.Logger
	backend backend.Backend

	mu          sync.Mutex // serializes dev_init on this backend (§9: process-global registry)
	deviceCount int
}

// New tries each backend in order, returning the Context built around
// the first whose Init succeeds. Backends never used by this platform
// build (e.g. wasapi on linux) simply aren't present in candidates;
// PlatformBackends supplies the right list for the running platform.
func New(candidates []backend.Backend, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for _, b := range candidates {
		if b == nil {
			continue
		}
		if err := b.Init(); err != nil {
			logger.Warn("backend init failed, trying next", "backend", b.ID().String(), "err", err)
			lastErr = err
			continue
		}
		id := uuid.New()
		ctx := &Context{
			id:      id,
			logger:  logger.With("context uuid", id, "backend", b.ID().String()),
			backend: b,
		}
		ctx.logger.Info("context initialized")
		return ctx, nil
	}
	if lastErr != nil {
		return nil, backendError("context", ResultNoBackend, lastErr)
	}
	return nil, ResultNoBackend
}

// NewDefault is New(PlatformBackends(logger), logger).
func NewDefault(logger *slog.Logger) (*Context, error) {
	return New(PlatformBackends(logger), logger)
}

// BackendID reports which backend this context selected.
func (c *Context) BackendID() backend.ID { return c.backend.ID() }

// Enumerate lists devices of the given type on the selected backend.
func (c *Context) Enumerate(t DeviceType) ([]DeviceDescriptor, error) {
	infos, err := c.backend.Enumerate(t)
	if err != nil {
		return nil, backendError(c.backend.ID().String(), ResultNoDevice, err)
	}
	out := make([]DeviceDescriptor, len(infos))
	for i, info := range infos {
		out[i] = DeviceDescriptor{ID: info.ID, Name: info.Name}
	}
	return out, nil
}

// Uninit releases the backend's resources. Pre: no live devices.
func (c *Context) Uninit() error {
	c.mu.Lock()
	live := c.deviceCount
	c.mu.Unlock()
	if live > 0 {
		return ResultDeviceBusy
	}
	c.logger.Info("context uninitialized")
	return c.backend.Uninit()
}

func (c *Context) registerDevice() {
	c.mu.Lock()
	c.deviceCount++
	c.mu.Unlock()
}

func (c *Context) unregisterDevice() {
	c.mu.Lock()
	c.deviceCount--
	c.mu.Unlock()
}
