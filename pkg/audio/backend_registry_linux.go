//go:build linux

package audio

import (
	"log/slog"

	"github.com/quietfield/pcmio/internal/backend"
	"github.com/quietfield/pcmio/internal/backend/alsa"
	"github.com/quietfield/pcmio/internal/backend/null"
)

// PlatformBackends returns this platform's backend preference order:
// try ALSA first, fall back to the null backend so NewDefault always
// succeeds even on a machine with no sound hardware.
func PlatformBackends(logger *slog.Logger) []backend.Backend {
	return []backend.Backend{
		alsa.New(logger),
		null.New(logger),
	}
}
