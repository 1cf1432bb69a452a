//go:build !linux && !windows && !android && !openal

package audio

import (
	"log/slog"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/null"
)

// PlatformBackends on a platform with no native backend implemented
// here and no OpenAL runtime opted into via the "openal" build tag:
// the null backend is the only candidate.
func PlatformBackends(logger *slog.Logger) []backend.Backend {
	return []backend.Backend{null.New(logger)}
}
