package audio

import "fmt"

// Result is a discriminated result code. ResultOK is the distinguished
// success value; every other value satisfies the error interface so a
// Result can be returned wherever Go code expects an error.
type Result int32

const (
	ResultOK Result = iota

	// Argument/state
	ResultInvalidArgs
	ResultInvalidDeviceConfig
	ResultDeviceNotInitialized
	ResultDeviceBusy
	ResultDeviceAlreadyStarted
	ResultDeviceAlreadyStarting
	ResultDeviceAlreadyStopped
	ResultDeviceAlreadyStopping

	// Resource
	ResultOutOfMemory
	ResultFailedToCreateMutex
	ResultFailedToCreateEvent
	ResultFailedToCreateThread

	// Capability
	ResultFormatNotSupported
	ResultNoBackend
	ResultNoDevice
	ResultApiNotFound

	// Backend I/O
	ResultFailedToInitBackend
	ResultFailedToMapDeviceBuffer
	ResultFailedToReadDataFromClient
	ResultFailedToStartBackendDevice
	ResultFailedToStopBackendDevice
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInvalidArgs:
		return "invalid args"
	case ResultInvalidDeviceConfig:
		return "invalid device config"
	case ResultDeviceNotInitialized:
		return "device not initialized"
	case ResultDeviceBusy:
		return "device busy"
	case ResultDeviceAlreadyStarted:
		return "device already started"
	case ResultDeviceAlreadyStarting:
		return "device already starting"
	case ResultDeviceAlreadyStopped:
		return "device already stopped"
	case ResultDeviceAlreadyStopping:
		return "device already stopping"
	case ResultOutOfMemory:
		return "out of memory"
	case ResultFailedToCreateMutex:
		return "failed to create mutex"
	case ResultFailedToCreateEvent:
		return "failed to create event"
	case ResultFailedToCreateThread:
		return "failed to create thread"
	case ResultFormatNotSupported:
		return "format not supported"
	case ResultNoBackend:
		return "no backend"
	case ResultNoDevice:
		return "no device"
	case ResultApiNotFound:
		return "api not found"
	case ResultFailedToInitBackend:
		return "failed to init backend"
	case ResultFailedToMapDeviceBuffer:
		return "failed to map device buffer"
	case ResultFailedToReadDataFromClient:
		return "failed to read data from client"
	case ResultFailedToStartBackendDevice:
		return "failed to start backend device"
	case ResultFailedToStopBackendDevice:
		return "failed to stop backend device"
	default:
		return "unknown result"
	}
}

// Error satisfies the error interface so a Result can be returned or
// wrapped anywhere Go code expects one.
func (r Result) Error() string { return r.String() }

// backendError wraps a Result with the backend that produced it and,
// optionally, the underlying OS-level cause, producing the
// "[BACKEND] message" diagnostic line §7 requires while remaining
// unwrappable with errors.Is/errors.As against both the Result and the
// cause.
func backendError(backend string, result Result, cause error) error {
	if cause == nil {
		return fmt.Errorf("[%s] %w", backend, result)
	}
	return fmt.Errorf("[%s] %w: %w", backend, result, cause)
}
