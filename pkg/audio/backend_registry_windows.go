//go:build windows

package audio

import (
	"log/slog"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/dsound"
	"github.com/quietfield/pcmio/internal/backend/null"
	"github.com/quietfield/pcmio/internal/backend/wasapi"
)

// PlatformBackends prefers WASAPI (the modern, low-latency API) over
// DirectSound, falling back to null if neither COM interface can be
// acquired.
func PlatformBackends(logger *slog.Logger) []backend.Backend {
	return []backend.Backend{
		wasapi.New(logger),
		dsound.New(logger),
		null.New(logger),
	}
}
