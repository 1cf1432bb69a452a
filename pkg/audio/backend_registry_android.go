//go:build android

package audio

import (
	"log/slog"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/null"
	"github.com/quietfield/pcmio/internal/backend/opensl"
)

// PlatformBackends uses OpenSL ES, the only backend NDK audio apps can
// rely on across the API levels this library targets.
func PlatformBackends(logger *slog.Logger) []backend.Backend {
	return []backend.Backend{
		opensl.New(logger),
		null.New(logger),
	}
}
