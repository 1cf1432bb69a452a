//go:build !linux && !windows && !android && openal

package audio

import (
	"log/slog"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/null"
	"github.com/quietfield/pcmio/internal/backend/openal"
)

// PlatformBackends on the "openal" build tag: try OpenAL first, still
// fall back to the null backend if no OpenAL device is present.
func PlatformBackends(logger *slog.Logger) []backend.Backend {
	return []backend.Backend{
		openal.New(logger),
		null.New(logger),
	}
}
